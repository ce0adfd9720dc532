// Package project reads CMakeLists-style project files.
//
// Only the subset an embedded firmware build needs is understood: project,
// set (BASE_DIR, compiler/assembler/linker flags, SRC lists),
// add_executable/add_library, include_directories. Everything else parses
// into the AST but is ignored by the model.
package project
