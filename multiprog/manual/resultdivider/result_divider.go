package multiprog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/qfold-team/qfold-engine/core"
	"go.uber.org/zap"
)

// A counts key is read left to right: column k carries the k-th measured
// bit of the execution tape, so the first merged program owns the leftmost
// columns.

// swapVirtualPhysical reorders the columns of every counts key from
// physical wire order back to virtual wire order: the column at position
// mapping[v] moves to position v.
func swapVirtualPhysical(counts core.Counts, mapping core.VirtualPhysicalMappingMap) (core.Counts, error) {
	if len(mapping) == 0 {
		zap.L().Info("No virtualPhysicalMapping is given, so the counts are not swapped")
		return counts, nil
	}
	numQubits := len(mapping)
	swapped := core.Counts{}
	for physicalKey, count := range counts {
		length := len(physicalKey)
		if length != numQubits {
			return counts, errors.New("bit string length of the counts is not equal to the length of virtualPhysicalMapping")
		}
		columns := make([]string, length)
		for virtual, physical := range mapping {
			if int(physical) >= length || int(virtual) >= length {
				return counts,
					fmt.Errorf("virtual or physical qubit number is out of range. virtual: %d, physical: %d, length: %d",
						virtual, physical, length)
			}
			columns[virtual] = physicalKey[physical : physical+1]
		}
		swapped[strings.Join(columns, "")] = count
	}
	return swapped, nil
}

// divideStringByLengths cuts a counts key into per-program segments.
// ex) input: "101011011", lengths: [2, 3, 4] -> ["10", "101", "1011"]
func divideStringByLengths(input string, lengths []int32) ([]string, error) {
	var result []string = []string{}
	currentPos := int32(0)
	for _, length := range lengths {
		if currentPos+length > int32(len(input)) {
			return nil, errors.New("inconsistent qubits")
		}
		result = append(result, input[currentPos:currentPos+length])
		currentPos += length
	}

	if currentPos != int32(len(input)) {
		return nil, errors.New("inconsistent qubits")
	}

	return result, nil
}

// DivideResult splits the counts of an executed combined tape back into
// one counts map per constituent program. combinedQubitsList holds the
// readout width of each program in merge order. When the rewrite pipeline
// relocated wires, the recorded virtual-physical mapping puts the columns
// back in merge order first.
func DivideResult(jd *core.JobData, combinedQubitsList []int32) (err error) {
	err = nil
	if len(jd.Result.Counts) == 0 {
		err = errors.New("inconsistent qubit property")
		return
	}
	if jd.Result.RewriteInfo != nil {
		jd.Result.Counts, err = swapVirtualPhysical(jd.Result.Counts, jd.Result.RewriteInfo.VirtualPhysicalMappingMap)
		if err != nil {
			return
		}
	}

	divided := core.DividedResult{}
	for key, count := range jd.Result.Counts {
		var segments []string
		segments, err = divideStringByLengths(key, combinedQubitsList)
		if err != nil {
			return
		}
		zap.L().Debug("divided counts key", zap.Any("segments", segments))
		for i, segment := range segments {
			program := uint32(i)
			if _, exists := divided[program]; !exists {
				divided[program] = map[string]uint32{}
			}
			divided[program][segment] += count
		}
	}
	jd.Result.DividedResult = divided
	return
}
