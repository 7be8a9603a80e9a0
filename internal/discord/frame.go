package discord

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Opcode is the first header word of an IPC frame.
type Opcode uint32

const (
	// OpHandshake opens the session with the application id.
	OpHandshake Opcode = 0
	// OpFrame carries a JSON command or response.
	OpFrame Opcode = 1
	// OpClose is sent by Discord before it drops the connection.
	OpClose Opcode = 2
	// OpPing asks for an OpPong echo.
	OpPing Opcode = 3
	// OpPong answers an OpPing.
	OpPong Opcode = 4

	// frameHeaderSize is the opcode plus payload length, both uint32 LE.
	frameHeaderSize = 8

	// MaxPayloadSize is the largest payload accepted in either direction.
	MaxPayloadSize = 1 << 20

	// maxIPCSlots is the number of socket slots Discord may listen on (0-9).
	maxIPCSlots = 10
)

// ErrPayloadTooLarge is returned when a frame payload exceeds MaxPayloadSize.
var ErrPayloadTooLarge = errors.New("payload too large")

// ErrIPCNotAvailable is returned when no Discord IPC socket can be reached.
var ErrIPCNotAvailable = errors.New("discord IPC not available")

// ///////////////////////////////////////////////
// Frame Encoding
// ///////////////////////////////////////////////

// EncodeFrame builds [opcode LE][length LE][payload].
func EncodeFrame(opcode Opcode, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(opcode))
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(payload)))
	copy(frame[frameHeaderSize:], payload)
	return frame, nil
}

// writeJSON marshals v and writes it as a single frame.
func writeJSON(w io.Writer, opcode Opcode, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling frame: %w", err)
	}
	frame, err := EncodeFrame(opcode, payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// ///////////////////////////////////////////////
// Frame Decoding
// ///////////////////////////////////////////////

// DecodeFrame reads one frame from r, tolerating short reads.
func DecodeFrame(r io.Reader) (Opcode, []byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, fmt.Errorf("reading frame header: %w", err)
	}

	opcode := Opcode(binary.LittleEndian.Uint32(header[0:4]))
	length := binary.LittleEndian.Uint32(header[4:8])
	if length > MaxPayloadSize {
		return 0, nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, length, MaxPayloadSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return opcode, payload, nil
}

// response is the subset of a Discord reply the client inspects.
type response struct {
	Cmd   string `json:"cmd"`
	Evt   string `json:"evt"`
	Nonce string `json:"nonce"`
	Data  struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"data"`
}

// readResponse reads frames until a JSON reply arrives, answering pings on
// the way. An OpClose frame is reported as [ErrClosedByPeer].
func readResponse(rw io.ReadWriter) (response, error) {
	for {
		opcode, payload, err := DecodeFrame(rw)
		if err != nil {
			return response{}, err
		}
		switch opcode {
		case OpFrame:
			var resp response
			if err := json.Unmarshal(payload, &resp); err != nil {
				return response{}, fmt.Errorf("parsing response: %w", err)
			}
			return resp, nil
		case OpPing:
			frame, err := EncodeFrame(OpPong, payload)
			if err != nil {
				return response{}, err
			}
			if _, err := rw.Write(frame); err != nil {
				return response{}, fmt.Errorf("writing pong: %w", err)
			}
		case OpClose:
			var resp response
			_ = json.Unmarshal(payload, &resp)
			return response{}, fmt.Errorf("%w: %s", ErrClosedByPeer, resp.Data.Message)
		default:
			return response{}, fmt.Errorf("unexpected opcode %d", opcode)
		}
	}
}
