// Package metrics provides build and command metrics for fwbuilder.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics collection never needs nil checks:
//
//	pool := queue.NewPool(0)
//	pool.SetRecorder(metrics.NewPrometheusRecorder(nil))
//
// There is no long-running server to scrape, so PrometheusRecorder exports
// through WriteTextfile once a build finishes.
package metrics
