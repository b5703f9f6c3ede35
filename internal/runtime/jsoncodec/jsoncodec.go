// Package jsoncodec renders values as JSON for the debug surfaces of the
// runtime: dispatch history dumps, envelope logging and example output. The
// isolation boundary itself uses the binary codec package, not JSON.
package jsoncodec

import "github.com/bytedance/sonic"

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}
