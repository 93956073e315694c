package filetransfer

import (
	"encoding/json"
	"time"
)

// ChunkSize is the largest binary message the sender emits.
const ChunkSize = 16384

const (
	MessageTypeFileMetadata = "file-metadata"
	MessageTypeFileEnd      = "file-end"
)

// Metadata announces a file. It travels as a JSON text message.
type Metadata struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Timestamp int64  `json:"timestamp"`
}

// NewMetadata stamps a metadata message with the current time in
// milliseconds since the epoch.
func NewMetadata(name string, size int64, mimeType string) Metadata {
	return Metadata{
		Type:      MessageTypeFileMetadata,
		Name:      name,
		Size:      size,
		MimeType:  mimeType,
		Timestamp: time.Now().UnixMilli(),
	}
}

type endMessage struct {
	Type string `json:"type"`
}

// ChunkCount is the number of binary messages a file of size bytes needs.
func ChunkCount(size int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + ChunkSize - 1) / ChunkSize)
}

func encodeMetadata(meta Metadata) (string, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func encodeEnd() string {
	data, _ := json.Marshal(endMessage{Type: MessageTypeFileEnd})
	return string(data)
}

// parseControl decodes a text message. Metadata is returned only for
// file-metadata.
func parseControl(data []byte) (string, *Metadata, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", nil, wrapCause(ErrMalformed, err)
	}

	switch head.Type {
	case MessageTypeFileMetadata:
		var meta Metadata
		if err := json.Unmarshal(data, &meta); err != nil {
			return "", nil, wrapCause(ErrMalformed, err)
		}
		return head.Type, &meta, nil
	case MessageTypeFileEnd:
		return head.Type, nil, nil
	}
	return "", nil, ErrUnknownControl
}
