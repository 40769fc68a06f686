package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alymdu/shortest-plates/internal/plates"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageProbeDone  Stage = "PROBE_DONE"
	StageRunDone    Stage = "RUN_DONE"
	StageRunStopped Stage = "RUN_STOPPED"
	StageRunError   Stage = "RUN_ERROR"
)

// Event captures a single milestone of an enumeration run.
type Event struct {
	// RunID identifies the run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or probe milestone occurred.
	Stage Stage
	// Code and Status describe the observation for probe events.
	Code   plates.Code
	Status plates.Status
	// Note carries the observation note, or the error text for RUN_ERROR.
	Note string
	// Remaining is the number of codes left after this event.
	Remaining int
	// Dur is the probe latency, or the run wall time for terminal stages.
	Dur time.Duration
	// Pause is the delay scheduled after a probe.
	Pause time.Duration
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunStopped, StageRunError:
	case StageProbeDone:
		if e.Code == "" {
			return errors.New("probe done requires code")
		}
		if !e.Status.Valid() {
			return fmt.Errorf("probe done has invalid status %q", e.Status)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 || e.Pause < 0 {
		return errors.New("durations must be >= 0")
	}
	return nil
}

// Terminal reports whether the stage ends a run.
func (e Event) Terminal() bool {
	switch e.Stage {
	case StageRunDone, StageRunStopped, StageRunError:
		return true
	default:
		return false
	}
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
