package xmodem

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"
)

// pipeRW replays a scripted input stream and captures everything
// written.
type pipeRW struct {
	in  *bytes.Reader
	out bytes.Buffer
}

func newPipeRW(in []byte) *pipeRW { return &pipeRW{in: bytes.NewReader(in)} }

func (p *pipeRW) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *pipeRW) Write(b []byte) (int, error) { return p.out.Write(b) }

// frame builds the wire form of one block: header, padded payload,
// additive checksum.
func frame(seq byte, payload []byte) []byte {
	p := make([]byte, BlockSize)
	for i := range p {
		p[i] = padByte
	}
	copy(p, payload)
	f := append([]byte{SOH, seq, ^seq}, p...)
	return append(f, checksum(p))
}

func TestSenderFrameLayout(t *testing.T) {
	rw := newPipeRW([]byte{ACK, ACK})
	s := NewSender(rw)

	payload := make([]byte, BlockSize)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := s.SendBlock(payload); err != nil {
		t.Fatalf("SendBlock: %v", err)
	}

	got := rw.out.Bytes()
	if len(got) != 3+BlockSize+1 {
		t.Fatalf("frame is %d bytes, want %d", len(got), 3+BlockSize+1)
	}
	if got[0] != SOH || got[1] != 1 || got[2] != 0xFE {
		t.Errorf("header = % X, want 01 01 FE", got[:3])
	}
	if !bytes.Equal(got[3:3+BlockSize], payload) {
		t.Error("payload mangled")
	}
	var sum byte
	for _, b := range payload {
		sum += b
	}
	if got[3+BlockSize] != sum {
		t.Errorf("checksum = %#02x, want %#02x", got[3+BlockSize], sum)
	}

	// The next block pads a short payload and bumps the sequence.
	rw.out.Reset()
	if err := s.SendBlock(payload[:5]); err != nil {
		t.Fatalf("SendBlock: %v", err)
	}
	if want := frame(2, payload[:5]); !bytes.Equal(rw.out.Bytes(), want) {
		t.Errorf("second frame = % X, want % X", rw.out.Bytes(), want)
	}
}

func TestSenderRetransmits(t *testing.T) {
	// A NAK and a junk byte each draw a retransmission.
	rw := newPipeRW([]byte{NAK, 'z', ACK})
	s := NewSender(rw)

	payload := bytes.Repeat([]byte{0x42}, BlockSize)
	if err := s.SendBlock(payload); err != nil {
		t.Fatalf("SendBlock: %v", err)
	}
	if want := bytes.Repeat(frame(1, payload), 3); !bytes.Equal(rw.out.Bytes(), want) {
		t.Errorf("%d bytes on the wire, want three identical frames (%d)", rw.out.Len(), len(want))
	}
}

func TestSenderCancelled(t *testing.T) {
	s := NewSender(newPipeRW([]byte{CAN}))
	if err := s.SendBlock(make([]byte, BlockSize)); !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}

func TestSenderRetryLimit(t *testing.T) {
	rw := newPipeRW([]byte{NAK, NAK, NAK})
	s := NewSender(rw, WithRetries(3))

	err := s.SendBlock(make([]byte, 8))
	if !errors.Is(err, ErrRetryLimit) {
		t.Fatalf("err = %v, want ErrRetryLimit", err)
	}
	out := rw.out.Bytes()
	if want := 3*(3+BlockSize+1) + 1; len(out) != want {
		t.Fatalf("%d bytes on the wire, want %d", len(out), want)
	}
	if out[len(out)-1] != CAN {
		t.Error("no CAN after the budget ran out")
	}
}

func TestSenderOversizedBlock(t *testing.T) {
	s := NewSender(newPipeRW(nil))
	if err := s.SendBlock(make([]byte, BlockSize+1)); err == nil {
		t.Fatal("oversized block accepted")
	}
}

func TestSenderClose(t *testing.T) {
	rw := newPipeRW([]byte{NAK, ACK})
	s := NewSender(rw)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if want := []byte{EOT, EOT}; !bytes.Equal(rw.out.Bytes(), want) {
		t.Errorf("wrote % X, want % X", rw.out.Bytes(), want)
	}
}

func TestReceiver(t *testing.T) {
	payload1 := bytes.Repeat([]byte{0x11}, BlockSize)
	payload2 := bytes.Repeat([]byte{0x22}, BlockSize)
	stream := frame(1, payload1)
	stream = append(stream, frame(2, payload2)...)
	stream = append(stream, EOT)
	rw := newPipeRW(stream)

	var got bytes.Buffer
	n, err := NewReceiver(rw).Receive(&got)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if n != 2*BlockSize {
		t.Errorf("n = %d, want %d", n, 2*BlockSize)
	}
	if !bytes.Equal(got.Bytes(), append(payload1, payload2...)) {
		t.Error("payload differs")
	}
	if want := []byte{NAK, ACK, ACK, ACK}; !bytes.Equal(rw.out.Bytes(), want) {
		t.Errorf("control bytes % X, want % X", rw.out.Bytes(), want)
	}
}

func TestReceiverDropsDuplicate(t *testing.T) {
	payload := bytes.Repeat([]byte{0x33}, BlockSize)
	stream := frame(1, payload)
	stream = append(stream, frame(1, payload)...) // retransmission after a lost ACK
	stream = append(stream, frame(2, payload)...)
	stream = append(stream, EOT)
	rw := newPipeRW(stream)

	var got bytes.Buffer
	n, err := NewReceiver(rw).Receive(&got)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if n != 2*BlockSize {
		t.Errorf("n = %d, want %d: the duplicate must be dropped", n, 2*BlockSize)
	}
	if want := []byte{NAK, ACK, ACK, ACK, ACK}; !bytes.Equal(rw.out.Bytes(), want) {
		t.Errorf("control bytes % X, want % X", rw.out.Bytes(), want)
	}
}

func TestReceiverRejectsBadChecksum(t *testing.T) {
	payload := bytes.Repeat([]byte{0x44}, BlockSize)
	bad := frame(1, payload)
	bad[len(bad)-1]++
	stream := append(bad, frame(1, payload)...)
	stream = append(stream, EOT)
	rw := newPipeRW(stream)

	var got bytes.Buffer
	n, err := NewReceiver(rw).Receive(&got)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if n != BlockSize {
		t.Errorf("n = %d, want %d", n, BlockSize)
	}
	if want := []byte{NAK, NAK, ACK, ACK}; !bytes.Equal(rw.out.Bytes(), want) {
		t.Errorf("control bytes % X, want % X", rw.out.Bytes(), want)
	}
}

func TestReceiverOutOfOrderBlock(t *testing.T) {
	rw := newPipeRW(frame(3, make([]byte, BlockSize)))
	_, err := NewReceiver(rw).Receive(io.Discard)
	if err == nil || errors.Is(err, ErrCancelled) || errors.Is(err, ErrRetryLimit) {
		t.Fatalf("err = %v, want a sequence error", err)
	}
	if want := []byte{NAK, CAN}; !bytes.Equal(rw.out.Bytes(), want) {
		t.Errorf("control bytes % X, want % X", rw.out.Bytes(), want)
	}
}

func TestReceiverCancelled(t *testing.T) {
	_, err := NewReceiver(newPipeRW([]byte{CAN})).Receive(io.Discard)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}

func TestReceiverRetryLimit(t *testing.T) {
	rw := newPipeRW([]byte{'x', 'y'})
	r := NewReceiver(rw, WithRetries(2))
	_, err := r.Receive(io.Discard)
	if !errors.Is(err, ErrRetryLimit) {
		t.Fatalf("err = %v, want ErrRetryLimit", err)
	}
	if want := []byte{NAK, NAK, CAN}; !bytes.Equal(rw.out.Bytes(), want) {
		t.Errorf("control bytes % X, want % X", rw.out.Bytes(), want)
	}
}

type rwPair struct {
	io.Reader
	io.Writer
}

func TestLoopback(t *testing.T) {
	const blocks = 300 // enough to wrap the sequence byte

	hostR, devW := io.Pipe()
	devR, hostW := io.Pipe()

	data := make([]byte, blocks*BlockSize)
	for i := range data {
		data[i] = byte(i % 251)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- func() error {
			// The dispatcher role: consume the opening NAK before the
			// sender takes over the line.
			var trigger [1]byte
			if _, err := io.ReadFull(devR, trigger[:]); err != nil {
				return err
			}
			if trigger[0] != NAK {
				return fmt.Errorf("trigger byte %#02x, want NAK", trigger[0])
			}
			s := NewSender(rwPair{devR, devW})
			for off := 0; off < len(data); off += BlockSize {
				if err := s.SendBlock(data[off : off+BlockSize]); err != nil {
					return err
				}
			}
			return s.Close()
		}()
	}()

	var got bytes.Buffer
	n, err := NewReceiver(rwPair{hostR, hostW}).Receive(&got)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("send side: %v", err)
	}
	if n != int64(len(data)) {
		t.Fatalf("received %d bytes, want %d", n, len(data))
	}
	if !bytes.Equal(got.Bytes(), data) {
		t.Fatal("received data differs from what was sent")
	}
}
