package core

import (
	"context"
	"strconv"
	"strings"

	"LinkTerm/internal/device"
)

// CandidateLister enumerates the links the operator may pick from.
type CandidateLister func(ctx context.Context) ([]device.Candidate, error)

// SelectCandidate lists candidates numbered from 1 and reads a choice. An empty answer
// or "0" lists again; anything else that is not a listed number asks again.
// ok is false when the operator ends input or types exit: there is no selection.
func SelectCandidate(ctx context.Context, in LineReader, con Console, list CandidateLister) (device.Candidate, bool, error) {
	for {
		cands, err := list(ctx)
		if err != nil {
			return device.Candidate{}, false, err
		}
		if len(cands) == 0 {
			con.Notice("No devices found. Press Enter to scan again or type exit.")
		} else {
			labels := make([]string, len(cands))
			for i, c := range cands {
				labels[i] = c.Label
			}
			con.Candidates(labels)
		}

		for {
			line, err := in.ReadLine(ctx, "Select device (0 to rescan): ")
			if err != nil {
				if endOfInput(ctx, err) {
					return device.Candidate{}, false, nil
				}
				return device.Candidate{}, false, err
			}
			sel := strings.TrimSpace(line)
			if sel == "" || sel == "0" {
				break
			}
			if matchesToken(sel, []string{"exit", "quit"}) {
				return device.Candidate{}, false, nil
			}
			n, err := strconv.Atoi(sel)
			if err != nil || n < 1 || n > len(cands) {
				con.Failure("Invalid selection %q, enter a number between 1 and %d.", sel, len(cands))
				continue
			}
			return cands[n-1], true, nil
		}
	}
}
