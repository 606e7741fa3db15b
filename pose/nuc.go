package pose

import (
	"context"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"

	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/protocol"
)

// NUCPayloadSize is the size of a vision computer pose payload: x and y in metres and yaw in
// degrees, each a little-endian float32.
const NUCPayloadSize = 12

// DecodeNUC converts a vision computer payload into a Pose in millimetres.
func DecodeNUC(payload []byte) (Pose, error) {
	if len(payload) < NUCPayloadSize {
		return Pose{}, errors.Errorf("nuc payload too short: %d bytes", len(payload))
	}
	x := math.Float32frombits(binary.LittleEndian.Uint32(payload[0:4]))
	y := math.Float32frombits(binary.LittleEndian.Uint32(payload[4:8]))
	yaw := math.Float32frombits(binary.LittleEndian.Uint32(payload[8:12]))
	p := Pose{X: 1000 * float64(x), Y: 1000 * float64(y), Yaw: float64(yaw)}
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Yaw) {
		return Pose{}, errors.New("nuc payload contains NaN")
	}
	return p, nil
}

// EncodeNUC is the inverse of DecodeNUC. The simulator uses it to play the vision computer.
func EncodeNUC(p Pose) []byte {
	buf := make([]byte, NUCPayloadSize)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(float32(p.X/1000)))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(float32(p.Y/1000)))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(float32(p.Yaw)))
	return buf
}

// RunNUCStream decodes vision computer frames from r into src until r fails or ctx is done.
// Corrupt frames and frames for other links are skipped. onFrame, if set, is called after every
// accepted pose.
func RunNUCStream(ctx context.Context, r io.Reader, src *Source, logger logging.Logger, onFrame func()) error {
	dec := protocol.NewDecoder(r)
	for ctx.Err() == nil {
		frame, err := dec.Next()
		if err != nil {
			if errors.Is(err, protocol.ErrCorrupt) {
				logger.Debugw("skipping corrupt nuc frame", "error", err)
				continue
			}
			if ctx.Err() != nil {
				break
			}
			return errors.Wrap(err, "reading nuc stream")
		}
		if frame.ID != protocol.IDNUC {
			continue
		}
		p, err := DecodeNUC(frame.Payload)
		if err != nil {
			logger.Debugw("skipping nuc frame", "error", err)
			continue
		}
		src.Set(p)
		if onFrame != nil {
			onFrame()
		}
	}
	return ctx.Err()
}
