package swapdb

import (
	"bytes"
	"io"

	"github.com/lightningnetwork/lnd/tlv"
)

// encodeTree serializes an ordered list of leaf scripts (HTLC leaf first,
// timeout leaf second, per htlc.LeafHTLC/htlc.LeafTimeout) into a single
// varint-length-prefixed byte stream using lnd's own tlv.WriteVarInt,
// matching how lnd serializes variable-length record lists elsewhere (e.g.
// channel backups) rather than a bespoke JSON array.
func encodeTree(leaves [][]byte) []byte {
	var buf bytes.Buffer
	var scratch [8]byte

	for _, leaf := range leaves {
		_ = tlv.WriteVarInt(&buf, uint64(len(leaf)), &scratch)
		buf.Write(leaf)
	}

	return buf.Bytes()
}

// decodeTree is the inverse of encodeTree.
func decodeTree(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}

	r := bytes.NewReader(data)
	var scratch [8]byte
	var leaves [][]byte

	for {
		size, err := tlv.ReadVarInt(r, &scratch)
		if err == io.EOF {
			break
		}
		if err != nil {
			return leaves
		}

		leaf := make([]byte, size)
		if _, err := io.ReadFull(r, leaf); err != nil {
			return leaves
		}

		leaves = append(leaves, leaf)
	}

	return leaves
}
