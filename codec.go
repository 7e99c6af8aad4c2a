package xstreams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// Codec encodes events into entry payloads.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// JSONCodec is the default codec.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSONCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }
func (JSONCodec) Name() string                    { return "json" }

// CodecFactory constructs a codec.
type CodecFactory func() Codec

var (
	codecRegistryMu sync.RWMutex
	codecRegistry   = map[string]CodecFactory{
		"json": func() Codec { return JSONCodec{} },
	}
)

// RegisterCodec registers a codec factory by name.
func RegisterCodec(name string, factory CodecFactory) error {
	if name == "" {
		return errors.New("codec name must not be empty")
	}
	if factory == nil {
		return errors.New("codec factory must not be nil")
	}
	codecRegistryMu.Lock()
	codecRegistry[name] = factory
	codecRegistryMu.Unlock()
	return nil
}

// NewCodec constructs a codec by name.
func NewCodec(name string) (Codec, error) {
	codecRegistryMu.RLock()
	f, ok := codecRegistry[name]
	codecRegistryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCodecNotRegistered, name)
	}
	return f(), nil
}

// EventTypeName is the type name recorded for v: its EventName when v implements Named,
// otherwise the Go type name without package qualifier.
func EventTypeName(v any) string {
	if n, ok := v.(Named); ok {
		return n.EventName()
	}
	t := reflect.TypeOf(v)
	if t == nil {
		return "nil"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}

// DecodeCodec unmarshals the container payload into T with c.
func DecodeCodec[T any](c Codec, bc BatchContainer) (T, error) {
	var v T
	if err := c.Unmarshal(bc.Data(), &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", bc.EventType(), err)
	}
	return v, nil
}

// Decode unmarshals the container payload into T using the codec injected in ctx,
// falling back to JSON.
func Decode[T any](ctx context.Context, bc BatchContainer) (T, error) {
	if c, ok := CodecFromContext(ctx); ok {
		return DecodeCodec[T](c, bc)
	}
	return DecodeCodec[T](JSONCodec{}, bc)
}
