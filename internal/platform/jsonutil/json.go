// Package jsonutil centralizes JSON encoding on sonic so hot paths
// (links columns, users file, API payloads) share one configuration.
package jsonutil

import "github.com/bytedance/sonic"

var api = sonic.Config{
	CompactMarshaler: true,
	CopyString:       true,
}.Froze()

func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}
