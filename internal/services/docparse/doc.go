// Package docparse turns PDF and office documents into Markdown through a
// remote extraction service: request an upload slot, PUT the file bytes, then
// poll the batch result until a terminal state.
//
// The service's response shapes have drifted across versions, so the decoders
// accept every known field variant instead of pinning a single schema.
package docparse
