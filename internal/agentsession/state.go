package agentsession

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// counterState is the on-disk record of the last cumulative byte counters
// seen per interface, so deltas survive an agent restart.
type counterState struct {
	Interfaces map[string]rawInterfaceCounters `json:"interfaces"`
}

// loadCounterState reads path, returning an empty state if it doesn't
// exist yet (the agent's first run).
func loadCounterState(path string) (counterState, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return counterState{Interfaces: make(map[string]rawInterfaceCounters)}, nil
	}
	if err != nil {
		return counterState{}, err
	}
	var st counterState
	if err := json.Unmarshal(data, &st); err != nil {
		return counterState{}, err
	}
	if st.Interfaces == nil {
		st.Interfaces = make(map[string]rawInterfaceCounters)
	}
	return st, nil
}

// saveCounterState writes st to path atomically: a temp file in the same
// directory, then a rename, so a crash mid-write never leaves a corrupt
// state file behind.
func saveCounterState(path string, st counterState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".net-counters-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming counter state into place: %w", err)
	}
	return nil
}

// interfaceDeltas computes the byte deltas for current against prev,
// clamping to 0 on a new interface or a counter reset (current < prev).
func interfaceDeltas(prev map[string]rawInterfaceCounters, current []rawInterfaceCounters) ([]InterfaceDelta, map[string]rawInterfaceCounters) {
	next := make(map[string]rawInterfaceCounters, len(current))
	deltas := make([]InterfaceDelta, 0, len(current))

	for _, c := range current {
		next[c.Name] = c
		p, ok := prev[c.Name]
		if !ok {
			deltas = append(deltas, InterfaceDelta{Name: c.Name, BytesSent: 0, BytesRecv: 0})
			continue
		}
		deltas = append(deltas, InterfaceDelta{
			Name:      c.Name,
			BytesSent: clampedDelta(p.BytesSent, c.BytesSent),
			BytesRecv: clampedDelta(p.BytesRecv, c.BytesRecv),
		})
	}
	return deltas, next
}

func clampedDelta(prev, current uint64) uint64 {
	if current < prev {
		return 0
	}
	return current - prev
}
