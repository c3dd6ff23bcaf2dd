package store

import (
	"bytes"
	"encoding/gob"

	"github.com/corvidmem/corvid/internal/cerrors"
	"github.com/corvidmem/corvid/internal/fingerprint"
)

func init() {
	gob.Register(fingerprint.Fingerprint{})
	gob.Register(fingerprint.SourceMetadata{})
	gob.Register(AuditRecord{})
	gob.Register(MergeRecord{})
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeCorruption, err)
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeCorruption, err)
	}
	return nil
}
