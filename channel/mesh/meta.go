package mesh

import (
	"bytes"
	"compress/zlib"
	"io/ioutil"

	proto "github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
	"github.com/vx-labs/grid/channel/mesh/pb"
)

func encodeMeta(meta *pb.NodeMeta) ([]byte, error) {
	payload, err := proto.Marshal(meta)
	if err != nil {
		return nil, err
	}
	b := bytes.NewBuffer(nil)
	w := zlib.NewWriter(b)
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decodeMeta(b []byte) (*pb.NodeMeta, error) {
	if len(b) == 0 {
		return nil, errors.New("empty node metadata")
	}
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open node metadata")
	}
	defer r.Close()
	payload, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read node metadata")
	}
	meta := &pb.NodeMeta{}
	if err := proto.Unmarshal(payload, meta); err != nil {
		return nil, errors.Wrap(err, "failed to decode node metadata")
	}
	return meta, nil
}
