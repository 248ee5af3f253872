// Package json provides JSON serialization backed by goccy/go-json with
// pooled buffers for page encoding.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/nebula-extract/pkg/models"
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1024*1024 { // Don't pool very large buffers
		return
	}
	bufferPool.Put(buf)
}

// Marshal is a drop-in replacement for encoding/json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// MarshalIndent is a drop-in replacement for encoding/json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// Unmarshal is a drop-in replacement for encoding/json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// NewEncoder returns an encoder that does not escape HTML.
func NewEncoder(w io.Writer) *gojson.Encoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// NewDecoder returns a decoder that keeps numbers as json.Number so that
// integer IDs survive a round trip.
func NewDecoder(r io.Reader) *gojson.Decoder {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// WriteRecordsLines writes records as line-delimited JSON, one per line, in order.
func WriteRecordsLines(w io.Writer, records []models.Record) error {
	enc := NewEncoder(w)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return err
		}
	}
	return nil
}

// MarshalRecordsLines marshals records as line-delimited JSON.
func MarshalRecordsLines(records []models.Record) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if err := WriteRecordsLines(buf, records); err != nil {
		return nil, err
	}

	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// ReadRecordsLines decodes line-delimited JSON records until EOF.
func ReadRecordsLines(r io.Reader) ([]models.Record, error) {
	dec := NewDecoder(r)
	var records []models.Record
	for {
		var rec models.Record
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				return records, nil
			}
			return records, err
		}
		records = append(records, rec)
	}
}
