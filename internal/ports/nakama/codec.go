package nakama

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"spikeline/internal/domain"
)

// message is a decoded client payload. Missing fields read as zero values.
type message struct {
	fields map[string]interface{}
}

func decodeMessage(data []byte) (message, error) {
	if len(data) == 0 {
		return message{fields: map[string]interface{}{}}, nil
	}
	s := &structpb.Struct{}
	if err := proto.Unmarshal(data, s); err != nil {
		return message{}, fmt.Errorf("decode message: %w", err)
	}
	return message{fields: s.AsMap()}, nil
}

func (m message) str(key string) string {
	v, _ := m.fields[key].(string)
	return v
}

func (m message) num(key string) float64 {
	v, _ := m.fields[key].(float64)
	return v
}

func (m message) boolean(key string) bool {
	v, _ := m.fields[key].(bool)
	return v
}

func (m message) millis(key string) time.Duration {
	return time.Duration(m.num(key)) * time.Millisecond
}

// vec reads {"x","y","z"} from a nested object, falling back to top-level coordinates.
func (m message) vec(key string) domain.Vec3 {
	src := m.fields
	if nested, ok := m.fields[key].(map[string]interface{}); ok {
		src = nested
	}
	read := func(k string) float64 {
		v, _ := src[k].(float64)
		return v
	}
	return domain.Vec3{X: read("x"), Y: read("y"), Z: read("z")}
}

// encodePayload converts any JSON-serializable value into a binary Struct message.
func encodePayload(v interface{}) ([]byte, error) {
	s, err := toStruct(v)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return structpb.NewStruct(fields)
}

// encodeLabel renders the match label as JSON for Nakama's label index.
func encodeLabel(v interface{}) (string, error) {
	s, err := toStruct(v)
	if err != nil {
		return "", err
	}
	raw, err := protojson.MarshalOptions{EmitUnpopulated: true}.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
