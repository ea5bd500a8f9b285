// Package serializer encodes and decodes the bodies of frames.
//
// The frame layer itself treats bodies as opaque bytes, the serializers are used by
// the dispatchers and the command line tools to turn packet payloads
// (see common.PacketPing and friends) into bodies and back.
//
// Implementations:
//
//   - jsonSerializerImpl: JSON, the default body format. Human readable, works with
//     peers written in any language.
//
//   - gobSerializerImpl: Go's gob encoding. Only useful if both peers are Go programs.
//
// All implementations are stateless and safe for concurrent use.
package serializer
