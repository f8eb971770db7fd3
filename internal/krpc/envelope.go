package krpc

import (
	"fmt"

	"github.com/zeebo/bencode"
)

// Envelope is a parsed top-level message. Args, Response and Error are
// populated according to Type; the payload maps are left untyped for the
// method-shape decoders to validate further.
type Envelope struct {
	TransactionID string
	Type          MessageType
	Method        Method // set only for TypeQuery
	Args          map[string]interface{}
	Response      map[string]interface{}
	Error         *ErrorPayload
}

// ErrorPayload is the (code, message) pair carried by error messages.
type ErrorPayload struct {
	Code    int64
	Message string
}

func encodeEnvelope(tid string, body map[string]interface{}) ([]byte, error) {
	if tid == "" {
		return nil, fmt.Errorf("%w: transaction id must not be empty", ErrInvalidFieldLength)
	}
	body[keyTransactionID] = tid
	out, err := bencode.EncodeBytes(body)
	if err != nil {
		return nil, fmt.Errorf("krpc: bencode encode failed: %w", err)
	}
	return out, nil
}

// EncodeQueryEnvelope wraps method arguments in a query envelope.
func EncodeQueryEnvelope(tid string, method Method, args map[string]interface{}) ([]byte, error) {
	return encodeEnvelope(tid, map[string]interface{}{
		keyType:      string(TypeQuery),
		keyQueryName: string(method),
		keyArgs:      args,
	})
}

// EncodeResponseEnvelope wraps a response payload in a response envelope.
func EncodeResponseEnvelope(tid string, resp map[string]interface{}) ([]byte, error) {
	return encodeEnvelope(tid, map[string]interface{}{
		keyType:     string(TypeResponse),
		keyResponse: resp,
	})
}

// EncodeError builds an error message. The payload is the two-element
// list [code, message]; no validation is applied beyond the envelope's.
func EncodeError(tid string, code int64, message string) ([]byte, error) {
	return encodeEnvelope(tid, map[string]interface{}{
		keyType:  string(TypeError),
		keyError: []interface{}{code, message},
	})
}

// DecodeEnvelope parses raw bytes into an Envelope. maxBytes bounds the
// accepted input size; values <= 0 select DefaultMaxMessageBytes. The
// payload maps are structurally checked only as far as the envelope
// contract goes; method shapes are validated by DecodeQuery and
// DecodeResponse.
func DecodeEnvelope(raw []byte, maxBytes int) (*Envelope, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	if len(raw) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds bound of %d", ErrMessageTooLarge, len(raw), maxBytes)
	}

	var top map[string]interface{}
	if err := bencode.DecodeBytes(raw, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: top level is not a dictionary", ErrMalformedEncoding)
	}

	tid, err := stringField(top, keyTransactionID)
	if err != nil {
		return nil, err
	}
	typeTag, err := stringField(top, keyType)
	if err != nil {
		return nil, err
	}
	msgType := MessageType(typeTag)
	if !knownTypes[msgType] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typeTag)
	}

	env := &Envelope{TransactionID: tid, Type: msgType}

	switch msgType {
	case TypeQuery:
		name, err := stringField(top, keyQueryName)
		if err != nil {
			return nil, err
		}
		method := Method(name)
		if !knownMethods[method] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
		}
		args, err := dictField(top, keyArgs)
		if err != nil {
			return nil, err
		}
		env.Method = method
		env.Args = args

	case TypeResponse:
		resp, err := dictField(top, keyResponse)
		if err != nil {
			return nil, err
		}
		env.Response = resp

	case TypeError:
		payload, err := errorField(top)
		if err != nil {
			return nil, err
		}
		env.Error = payload
	}

	return env, nil
}

func stringField(m map[string]interface{}, key string) (string, error) {
	raw, ok := m[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMissingField, key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q is not a string", ErrWrongFieldType, key)
	}
	return s, nil
}

func dictField(m map[string]interface{}, key string) (map[string]interface{}, error) {
	raw, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingField, key)
	}
	d, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a dictionary", ErrWrongFieldType, key)
	}
	return d, nil
}

func errorField(m map[string]interface{}) (*ErrorPayload, error) {
	raw, ok := m[keyError]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingField, keyError)
	}
	list, ok := raw.([]interface{})
	if !ok || len(list) != 2 {
		return nil, fmt.Errorf("%w: error value is not a two-element list", ErrMalformedPayload)
	}
	code, ok := list[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: error code is not an integer", ErrMalformedPayload)
	}
	msg, ok := list[1].(string)
	if !ok {
		return nil, fmt.Errorf("%w: error message is not a string", ErrMalformedPayload)
	}
	return &ErrorPayload{Code: code, Message: msg}, nil
}
