// Package imaging implements the image-processing half of the cache engine:
// decoding source assets, producing resized JPEG variants, and extracting
// tiny inline placeholder previews (LQIP).
//
// # Pipeline
//
// A source image is decoded once and can feed two producers:
//   - Transform / ResizeEncode: Lanczos resize to the requested box followed
//     by JPEG encoding at the requested quality.
//   - Placeholder: a thumbnail of at most a few dozen pixels, pre-blurred and
//     embedded as a data URI inside self-contained SVG markup sized to the
//     target image's aspect ratio.
//
// # Supported Formats
//
// Registered input decoders are PNG, JPEG, GIF, and WebP. Output is always
// JPEG; the quality parameter maps directly onto the encoder's 1-100 scale.
//
// # Thread Safety
//
// SourceCache is safe for concurrent use. Transform, ResizeEncode, and
// Placeholder are pure functions with no shared state and can be called
// concurrently on different or identical inputs.
//
// # Error Handling
//
// Failures are classified with sentinel errors so callers can map them to
// transport-level responses:
//   - ErrInvalidDimension: no target dimension given, or out of bounds
//   - ErrInvalidQuality: quality outside [1,100], checked before any decode
//   - ErrUnsupportedFormat: source bytes are not a decodable image
//   - ErrEncodingFailure: the JPEG encoder failed
package imaging
