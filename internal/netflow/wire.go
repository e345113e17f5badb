// Package netflow implements a NetFlow v5 UDP collector: it parses incoming
// export packets, aggregates per-device byte counts over a rolling window,
// and flushes the result to the Store as traffic samples.
package netflow

import (
	"encoding/binary"
	"fmt"
	"net"
)

const (
	headerSize = 24
	recordSize = 48
	version5   = 5
)

// header is the fixed NetFlow v5 packet header.
type header struct {
	Version      uint16
	Count        uint16
	SysUptime    uint32
	UnixSecs     uint32
	UnixNsecs    uint32
	FlowSequence uint32
	EngineType   uint8
	EngineID     uint8
	SamplingIntv uint16
}

// record is one NetFlow v5 flow record.
type record struct {
	SrcAddr  uint32
	DstAddr  uint32
	NextHop  uint32
	Input    uint16
	Output   uint16
	DPkts    uint32
	DOctets  uint32
	First    uint32
	Last     uint32
	SrcPort  uint16
	DstPort  uint16
	Pad1     uint8
	TCPFlags uint8
	Proto    uint8
	Tos      uint8
	SrcAS    uint16
	DstAS    uint16
	SrcMask  uint8
	DstMask  uint8
}

// packet is a parsed NetFlow v5 export: a header plus its flow records.
type packet struct {
	Header  header
	Records []record
}

// parsePacket decodes buf as a NetFlow v5 packet. It rejects anything whose
// version isn't 5 or whose length is shorter than the header plus
// count*recordSize — a truncated or non-v5 packet is a parse failure, not a
// partial result.
func parsePacket(buf []byte) (packet, error) {
	if len(buf) < headerSize {
		return packet{}, fmt.Errorf("netflow: packet too short for header (%d bytes)", len(buf))
	}

	h := header{
		Version:      binary.BigEndian.Uint16(buf[0:2]),
		Count:        binary.BigEndian.Uint16(buf[2:4]),
		SysUptime:    binary.BigEndian.Uint32(buf[4:8]),
		UnixSecs:     binary.BigEndian.Uint32(buf[8:12]),
		UnixNsecs:    binary.BigEndian.Uint32(buf[12:16]),
		FlowSequence: binary.BigEndian.Uint32(buf[16:20]),
		EngineType:   buf[20],
		EngineID:     buf[21],
		SamplingIntv: binary.BigEndian.Uint16(buf[22:24]),
	}
	if h.Version != version5 {
		return packet{}, fmt.Errorf("netflow: unsupported version %d", h.Version)
	}

	want := headerSize + int(h.Count)*recordSize
	if len(buf) < want {
		return packet{}, fmt.Errorf("netflow: packet length %d shorter than header+%d records (%d)", len(buf), h.Count, want)
	}

	records := make([]record, 0, h.Count)
	for i := 0; i < int(h.Count); i++ {
		off := headerSize + i*recordSize
		rec := buf[off : off+recordSize]
		records = append(records, record{
			SrcAddr:  binary.BigEndian.Uint32(rec[0:4]),
			DstAddr:  binary.BigEndian.Uint32(rec[4:8]),
			NextHop:  binary.BigEndian.Uint32(rec[8:12]),
			Input:    binary.BigEndian.Uint16(rec[12:14]),
			Output:   binary.BigEndian.Uint16(rec[14:16]),
			DPkts:    binary.BigEndian.Uint32(rec[16:20]),
			DOctets:  binary.BigEndian.Uint32(rec[20:24]),
			First:    binary.BigEndian.Uint32(rec[24:28]),
			Last:     binary.BigEndian.Uint32(rec[28:32]),
			SrcPort:  binary.BigEndian.Uint16(rec[32:34]),
			DstPort:  binary.BigEndian.Uint16(rec[34:36]),
			Pad1:     rec[36],
			TCPFlags: rec[37],
			Proto:    rec[38],
			Tos:      rec[39],
			SrcAS:    binary.BigEndian.Uint16(rec[40:42]),
			DstAS:    binary.BigEndian.Uint16(rec[42:44]),
			SrcMask:  rec[44],
			DstMask:  rec[45],
		})
	}

	return packet{Header: h, Records: records}, nil
}

func addrString(addr uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], addr)
	return net.IP(b[:]).String()
}
