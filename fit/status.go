// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"fmt"

	"github.com/curioloop/confit/solver"
)

// Status is the terminal outcome of a fit. Only Success carries fitted values.
type Status int

const (
	Success Status = iota
	NoConvergence
	TooManyIterations
	UnphysicalValues
	NegativeDoF
	OutOfMemory
)

func (s Status) String() string {
	switch s {
	case Success:
		return "Success"
	case NoConvergence:
		return "NoConvergence"
	case TooManyIterations:
		return "TooManyIterations"
	case UnphysicalValues:
		return "UnphysicalValues"
	case NegativeDoF:
		return "NegativeDoF"
	case OutOfMemory:
		return "OutOfMemory"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// decodeStatus maps a terminal solver code onto exactly one Status.
func decodeStatus(code int) (Status, error) {
	switch code {
	case solver.Success:
		return Success, nil
	case solver.NoConvergence:
		return NoConvergence, nil
	case solver.TooManyIterations:
		return TooManyIterations, nil
	case solver.UnphysicalValues:
		return UnphysicalValues, nil
	case solver.NegativeDoF:
		return NegativeDoF, nil
	case solver.OutOfMemory:
		return OutOfMemory, nil
	default:
		return 0, &SolverContractError{Status: code}
	}
}
