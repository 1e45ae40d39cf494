// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

import (
	"fmt"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/vector"
)

var payloadMUS = ord.NewMapSer[string, string](ord.String, ord.String)

// marshalPoint serializes a point. Field order is the storage format.
func marshalPoint(p *vector.Point) []byte {
	size := core.IDMUS.Size(p.Id)
	size += core.IDMUS.Size(p.DocumentId)
	size += core.VectorMUS.Size(p.Vector)
	size += payloadMUS.Size(p.Payload)
	size += raw.TimeUnixMicro.Size(p.IngestedAt)

	bs := make([]byte, size)
	n := core.IDMUS.Marshal(p.Id, bs)
	n += core.IDMUS.Marshal(p.DocumentId, bs[n:])
	n += core.VectorMUS.Marshal(p.Vector, bs[n:])
	n += payloadMUS.Marshal(p.Payload, bs[n:])
	raw.TimeUnixMicro.Marshal(p.IngestedAt, bs[n:])
	return bs
}

func unmarshalPoint(bs []byte) (*vector.Point, error) {
	var (
		p   vector.Point
		n   int
		n1  int
		err error
	)
	if p.Id, n, err = core.IDMUS.Unmarshal(bs); err != nil {
		return nil, fmt.Errorf("unmarshal point id: %w", err)
	}
	if p.DocumentId, n1, err = core.IDMUS.Unmarshal(bs[n:]); err != nil {
		return nil, fmt.Errorf("unmarshal point document id: %w", err)
	}
	n += n1
	if p.Vector, n1, err = core.VectorMUS.Unmarshal(bs[n:]); err != nil {
		return nil, fmt.Errorf("unmarshal point vector: %w", err)
	}
	n += n1
	if p.Payload, n1, err = payloadMUS.Unmarshal(bs[n:]); err != nil {
		return nil, fmt.Errorf("unmarshal point payload: %w", err)
	}
	n += n1
	if p.IngestedAt, _, err = raw.TimeUnixMicro.Unmarshal(bs[n:]); err != nil {
		return nil, fmt.Errorf("unmarshal point ingestion time: %w", err)
	}
	return &p, nil
}

// marshalCollection serializes collection metadata (the dimension
// count).
func marshalCollection(dims int) []byte {
	bs := make([]byte, varint.Int.Size(dims))
	varint.Int.Marshal(dims, bs)
	return bs
}

func unmarshalCollection(bs []byte) (int, error) {
	dims, _, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return 0, fmt.Errorf("unmarshal collection dims: %w", err)
	}
	return dims, nil
}
