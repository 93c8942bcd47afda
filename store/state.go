package store

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/boltdb/bolt"
	proto "github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
	"github.com/vx-labs/grid/store/pb"
)

const maxEntrySize = 64 * 1024 * 1024

// GenerateState writes every entry of resource to w, as length-prefixed protobuf
// entries in key order.
func (b *BoltStore) GenerateState(resource string, w io.Writer) error {
	return b.conn.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(resource))
		if bucket == nil {
			return ErrResourceNotFound
		}
		return bucket.ForEach(func(k, v []byte) error {
			return writeEntry(w, &pb.Entry{Key: string(k), Value: v})
		})
	})
}

// ApplyState replaces the content of resource with the entries read from r. The
// resource is left untouched when r cannot be read entirely.
func (b *BoltStore) ApplyState(resource string, r io.Reader) error {
	return b.conn.Update(func(tx *bolt.Tx) error {
		name := []byte(resource)
		if tx.Bucket(name) != nil {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		bucket, err := tx.CreateBucket(name)
		if err != nil {
			return err
		}
		reader := bufio.NewReader(r)
		for {
			entry, err := readEntry(reader)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(entry.Key), entry.Value); err != nil {
				return err
			}
		}
	})
}

func writeEntry(w io.Writer, entry *pb.Entry) error {
	payload, err := proto.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := w.Write(proto.EncodeVarint(uint64(len(payload)))); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

func readEntry(r *bufio.Reader) (*pb.Entry, error) {
	size, err := binary.ReadUvarint(r)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "failed to read entry size")
	}
	if size > maxEntrySize {
		return nil, errors.Errorf("entry of %d bytes exceeds the maximum entry size", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(err, "failed to read entry")
	}
	entry := &pb.Entry{}
	if err := proto.Unmarshal(payload, entry); err != nil {
		return nil, errors.Wrap(err, "failed to decode entry")
	}
	return entry, nil
}
