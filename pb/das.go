// Package pb holds the wire messages exchanged between sampling peers.
// The messages mirror das.proto and are encoded with gogo/protobuf.
package pb

import (
	"github.com/gogo/protobuf/proto"
)

// SampleRequest asks a peer for the share at Index of the codeword
// committed to by Digest
type SampleRequest struct {
	Id     uint64 `protobuf:"varint,1,opt,name=id,proto3" json:"id,omitempty"`
	Digest []byte `protobuf:"bytes,2,opt,name=digest,proto3" json:"digest,omitempty"`
	Index  uint64 `protobuf:"varint,3,opt,name=index,proto3" json:"index,omitempty"`
}

func (m *SampleRequest) Reset()         { *m = SampleRequest{} }
func (m *SampleRequest) String() string { return proto.CompactTextString(m) }
func (*SampleRequest) ProtoMessage()    {}

func (m *SampleRequest) GetId() uint64 {
	if m != nil {
		return m.Id
	}
	return 0
}

func (m *SampleRequest) GetDigest() []byte {
	if m != nil {
		return m.Digest
	}
	return nil
}

func (m *SampleRequest) GetIndex() uint64 {
	if m != nil {
		return m.Index
	}
	return 0
}

// SampleResponse carries a share and its Merkle path, or Error when the
// peer could not serve the request
type SampleResponse struct {
	Id       uint64   `protobuf:"varint,1,opt,name=id,proto3" json:"id,omitempty"`
	Index    uint64   `protobuf:"varint,2,opt,name=index,proto3" json:"index,omitempty"`
	Value    []byte   `protobuf:"bytes,3,opt,name=value,proto3" json:"value,omitempty"`
	Siblings [][]byte `protobuf:"bytes,4,rep,name=siblings,proto3" json:"siblings,omitempty"`
	Error    string   `protobuf:"bytes,5,opt,name=error,proto3" json:"error,omitempty"`
}

func (m *SampleResponse) Reset()         { *m = SampleResponse{} }
func (m *SampleResponse) String() string { return proto.CompactTextString(m) }
func (*SampleResponse) ProtoMessage()    {}

func (m *SampleResponse) GetId() uint64 {
	if m != nil {
		return m.Id
	}
	return 0
}

func (m *SampleResponse) GetIndex() uint64 {
	if m != nil {
		return m.Index
	}
	return 0
}

func (m *SampleResponse) GetValue() []byte {
	if m != nil {
		return m.Value
	}
	return nil
}

func (m *SampleResponse) GetSiblings() [][]byte {
	if m != nil {
		return m.Siblings
	}
	return nil
}

func (m *SampleResponse) GetError() string {
	if m != nil {
		return m.Error
	}
	return ""
}

// Rpc is the envelope sent on a peer connection
type Rpc struct {
	Requests  []*SampleRequest  `protobuf:"bytes,1,rep,name=requests,proto3" json:"requests,omitempty"`
	Responses []*SampleResponse `protobuf:"bytes,2,rep,name=responses,proto3" json:"responses,omitempty"`
}

func (m *Rpc) Reset()         { *m = Rpc{} }
func (m *Rpc) String() string { return proto.CompactTextString(m) }
func (*Rpc) ProtoMessage()    {}

func (m *Rpc) GetRequests() []*SampleRequest {
	if m != nil {
		return m.Requests
	}
	return nil
}

func (m *Rpc) GetResponses() []*SampleResponse {
	if m != nil {
		return m.Responses
	}
	return nil
}

func init() {
	proto.RegisterType((*SampleRequest)(nil), "das.pb.SampleRequest")
	proto.RegisterType((*SampleResponse)(nil), "das.pb.SampleResponse")
	proto.RegisterType((*Rpc)(nil), "das.pb.Rpc")
}
