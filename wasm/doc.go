// Package wasm provides lightweight WebAssembly binary tooling: LEB128
// encoding, module inspection without full decoding, and a small builder
// for assembling valid modules from raw instruction bodies.
//
// Inspect scans only the sections the executor needs before compiling a
// blob with a real engine: declared memory limits, whether memory is
// imported, and the export list. The builder exists mainly to construct
// guest fixtures in tests without a toolchain.
package wasm
