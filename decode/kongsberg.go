package decode

import (
	"encoding/binary"
	"net"
	"time"
)

// kgGroupKey identifies an in-progress multi-datagram reassembly
// (spec.md §4.1 Adapter B): a datagram only joins the in-progress group
// if its (timeSec, timeNanosec, numOfDgms) triple matches; a mismatch
// clears and restarts with the new group.
type kgGroupKey struct {
	timeSec     int32
	timeNanosec int32
	numOfDgms   int32
}

// kgDatagramHeaderLen covers the fields the reassembler inspects:
// length(4) + tag(4) + timeSec(4) + timeNanosec(4) + numOfDgms(4) +
// dgmNum(4).
const kgDatagramHeaderLen = 24

// Kongsberg is Adapter B: a UDP multicast source reassembling
// multi-datagram vendor record sets (spec.md §4.1).
type Kongsberg struct {
	GroupAddr   string
	Iface       string
	ReadTimeout time.Duration

	conn *net.UDPConn

	group kgGroupKey
	slots map[int32][]byte
	have  int
}

// NewKongsberg constructs an Adapter B source bound to a multicast
// group on the named interface (empty selects the default).
func NewKongsberg(groupAddr, iface string, readTimeout time.Duration) *Kongsberg {
	return &Kongsberg{GroupAddr: groupAddr, Iface: iface, ReadTimeout: readTimeout, slots: map[int32][]byte{}}
}

func (k *Kongsberg) Open() error {
	addr, err := net.ResolveUDPAddr("udp", k.GroupAddr)
	if err != nil {
		return err
	}
	var ifi *net.Interface
	if k.Iface != "" {
		ifi, err = net.InterfaceByName(k.Iface)
		if err != nil {
			return err
		}
	}
	conn, err := net.ListenMulticastUDP("udp", ifi, addr)
	if err != nil {
		return err
	}
	conn.SetReadBuffer(defaultFrameBufferLen)
	k.conn = conn
	return nil
}

func (k *Kongsberg) Reconnect() error {
	if k.conn != nil {
		_ = k.conn.Close()
	}
	k.resetGroup()
	return k.Open()
}

func (k *Kongsberg) Close() error {
	if k.conn == nil {
		return nil
	}
	return k.conn.Close()
}

func (k *Kongsberg) resetGroup() {
	k.slots = map[int32][]byte{}
	k.have = 0
	k.group = kgGroupKey{}
}

// ReadRecord receives datagrams, accumulating multi-part vendor record
// sets, until a complete set is assembled; it then returns the
// synthesized record. Single-datagram (numOfDgms==1) records return
// immediately.
func (k *Kongsberg) ReadRecord() (Record, error) {
	for {
		_ = k.conn.SetReadDeadline(time.Now().Add(k.ReadTimeout))
		buf := make([]byte, 64*1024)
		n, _, err := k.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return Record{}, ErrWouldBlock
			}
			if isEOF(err) {
				return Record{}, ErrDisconnected
			}
			return Record{}, err
		}
		datagram := buf[:n]

		rec, ready, err := k.accumulate(datagram)
		if err != nil {
			return Record{}, err
		}
		if ready {
			return rec, nil
		}
	}
}

// accumulate folds one datagram into the in-progress reassembly.
// Every datagram, including each piece of a multi-datagram set, is
// validated on its own: its leading length field must equal its own
// 4-byte trailer, otherwise it is rejected with ErrMalformed.
func (k *Kongsberg) accumulate(datagram []byte) (Record, bool, error) {
	if len(datagram) < kgDatagramHeaderLen+4 {
		return Record{}, false, ErrMalformed
	}
	if binary.LittleEndian.Uint32(datagram[0:4]) != binary.LittleEndian.Uint32(datagram[len(datagram)-4:]) {
		return Record{}, false, ErrMalformed
	}

	tag := string(datagram[4:8])
	timeSec := int32(binary.LittleEndian.Uint32(datagram[8:12]))
	timeNanosec := int32(binary.LittleEndian.Uint32(datagram[12:16]))
	numOfDgms := int32(binary.LittleEndian.Uint32(datagram[16:20]))
	dgmNum := int32(binary.LittleEndian.Uint32(datagram[20:24]))

	key := kgGroupKey{timeSec: timeSec, timeNanosec: timeNanosec, numOfDgms: numOfDgms}
	if key != k.group {
		k.resetGroup()
		k.group = key
	}

	if numOfDgms == 1 {
		k.resetGroup()
		return k.finalizeSingle(tag, datagram), true, nil
	}

	if dgmNum < 1 || dgmNum > numOfDgms {
		return Record{}, false, ErrMalformed
	}
	if _, dup := k.slots[dgmNum]; !dup {
		k.slots[dgmNum] = append([]byte(nil), datagram...)
		k.have++
	}
	if k.have < int(numOfDgms) {
		return Record{}, false, nil
	}

	pieces := make([][]byte, numOfDgms)
	for i := int32(1); i <= numOfDgms; i++ {
		pieces[i-1] = k.slots[i]
	}
	k.resetGroup()
	return k.finalize(tag, pieces)
}

// finalizeSingle builds a Record from a single, already-complete
// datagram (numOfDgms == 1): no reassembly is needed, so the full
// envelope (length/tag/time/partition header and trailing length) is
// stripped.
func (k *Kongsberg) finalizeSingle(tag string, datagram []byte) Record {
	return Record{
		Type:      ClassifyKongsberg(tag),
		Payload:   append([]byte(nil), datagram[kgDatagramHeaderLen:len(datagram)-4]...),
		ArrivedAt: time.Now().UnixNano(),
	}
}

// finalize reassembles numOfDgms>1 raw datagrams (each the full bytes
// received off the wire, in dgmNum order) into one synthesized
// single-datagram record. This mirrors mbtrnpp.c's
// mbtrnpp_kemkmall_input_read multi-packet MRZ/MWC handling
// (original_source/src/mbtrnutils/mbtrnpp.c): piece 0's full
// length/tag/time/partition header is preserved, with only its own
// trailing 4-byte length dropped; pieces 1..n-1 contribute only their
// payload (header, partition and trailing length all stripped). The
// assembled buffer's leading length, partition (numOfDgms=1, dgmNum=1)
// and trailing length are then rewritten to describe the synthesized
// whole, not any constituent piece.
func (k *Kongsberg) finalize(tag string, pieces [][]byte) (Record, bool, error) {
	for _, p := range pieces {
		if len(p) < kgDatagramHeaderLen+4 {
			return Record{}, false, ErrMalformed
		}
	}

	out := append([]byte(nil), pieces[0][:len(pieces[0])-4]...)
	for _, p := range pieces[1:] {
		out = append(out, p[kgDatagramHeaderLen:len(p)-4]...)
	}

	total := uint32(len(out) + 4)
	binary.LittleEndian.PutUint32(out[0:4], total)
	binary.LittleEndian.PutUint32(out[16:20], 1) // numOfDgms
	binary.LittleEndian.PutUint32(out[20:24], 1) // dgmNum

	trailer := make([]byte, 4)
	binary.LittleEndian.PutUint32(trailer, total)
	out = append(out, trailer...)

	return Record{
		Type:      ClassifyKongsberg(tag),
		Payload:   out,
		ArrivedAt: time.Now().UnixNano(),
	}, true, nil
}

var _ FrameSource = (*Kongsberg)(nil)
var _ Reconnectable = (*Kongsberg)(nil)
