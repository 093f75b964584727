package pack

import "fmt"

// Policy selects how document content is concatenated, truncated, and padded
// into sequence slots.
type Policy uint8

const (
	// PolicyPacked fills slots by walking an epoch-replicated shuffled
	// document stream without regard for document boundaries. Slots never
	// pad unless the corpus is exhausted.
	PolicyPacked Policy = iota
	// PolicyPackUntilOverflow greedily appends whole documents until the next
	// one would overflow the slot; oversized documents are chopped across
	// consecutive slots, short slots are padded.
	PolicyPackUntilOverflow
	// PolicyUnpacked maps each slot to exactly one document, truncated or
	// padded to the slot length. No cross-document concatenation.
	PolicyUnpacked
)

// ParsePolicy parses the pipeline's policy names.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "packed":
		return PolicyPacked, nil
	case "pack_until_overflow":
		return PolicyPackUntilOverflow, nil
	case "unpacked":
		return PolicyUnpacked, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

func (p Policy) String() string {
	switch p {
	case PolicyPacked:
		return "packed"
	case PolicyPackUntilOverflow:
		return "pack_until_overflow"
	case PolicyUnpacked:
		return "unpacked"
	default:
		return fmt.Sprintf("Policy(%d)", uint8(p))
	}
}

// Schedule describes the simulated training run.
type Schedule struct {
	TrainIters     int
	TrainBatchSize int
	TrainSeqLen    int
}

// NumSlots returns the total number of sequence slots across the schedule.
func (s Schedule) NumSlots() int64 {
	return int64(s.TrainIters) * int64(s.TrainBatchSize)
}

// Validate rejects non-positive schedule members.
func (s Schedule) Validate() error {
	if s.TrainIters <= 0 || s.TrainBatchSize <= 0 || s.TrainSeqLen <= 0 {
		return fmt.Errorf("schedule members must be positive: %+v", s)
	}
	return nil
}

// Split names one partition of the document set.
type Split uint8

const (
	SplitTrain Split = iota
	SplitValidation
	SplitTest
)

// ParseSplit parses a split name.
func ParseSplit(s string) (Split, error) {
	switch s {
	case "train":
		return SplitTrain, nil
	case "valid", "validation":
		return SplitValidation, nil
	case "test":
		return SplitTest, nil
	default:
		return 0, fmt.Errorf("unknown split %q", s)
	}
}

func (s Split) String() string {
	switch s {
	case SplitTrain:
		return "train"
	case SplitValidation:
		return "valid"
	case SplitTest:
		return "test"
	default:
		return fmt.Sprintf("Split(%d)", uint8(s))
	}
}
