// Package allocator implements the host-side heap allocator used to move
// byte buffers across the sandbox boundary.
//
// The guest does not import host allocation functions; instead the host
// owns a freeing-bump allocator over the guest's linear memory, starting
// at the guest's exported heap base. This keeps allocation behavior
// identical across engine backends, which onchain determinism requires,
// and makes per-call allocation statistics a free by-product.
package allocator
