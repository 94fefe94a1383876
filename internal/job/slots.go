package job

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/biocore-hpc/seqjob/internal/errs"
)

// slotCount returns the number of array slots in the job's details file.
// ok is false when the script generator wrote no details file, in which
// case there are no slot markers to check.
func (j *Job) slotCount() (n int, ok bool, err error) {
	f, err := os.Open(j.layout().DetailsPath())
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to open array details: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			n++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, false, fmt.Errorf("failed to read array details: %w", err)
	}
	return n, true, nil
}

// clearSlotMarkers removes markers left by an earlier submission so that
// only this run's slots count.
func (j *Job) clearSlotMarkers() error {
	n, ok, err := j.slotCount()
	if err != nil || !ok {
		return err
	}
	l := j.layout()
	for slot := 1; slot <= n; slot++ {
		if err := os.Remove(l.SlotMarkerPath(slot)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear slot marker: %w", err)
		}
	}
	return nil
}

// checkSlotMarkers fails the job when any slot finished without writing
// its marker. squeue forgets finished elements after MinJobAge, so an
// element that failed early can be missing from the final state map.
func (j *Job) checkSlotMarkers(jobID string) error {
	n, ok, err := j.slotCount()
	if err != nil || !ok {
		return err
	}
	l := j.layout()
	var missing []int
	for slot := 1; slot <= n; slot++ {
		if _, err := os.Stat(l.SlotMarkerPath(slot)); err != nil {
			missing = append(missing, slot)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	names := make([]string, len(missing))
	for i, slot := range missing {
		names[i] = strconv.Itoa(slot)
	}
	return &errs.JobFailedError{
		JobID:       jobID,
		Msg:         fmt.Sprintf("job %s exited with %d of %d array slots incomplete: %s", jobID, len(missing), n, strings.Join(names, ", ")),
		FailedSlots: missing,
	}
}
