package tasks

import (
	"strings"

	"github.com/segmentio/ksuid"
)

// PartitionKey derives the PK of a task.
//
//	fifo=false            → BOTTE_MESSAGE#<ksuid>  (own lane, unordered)
//	fifo=true, no group   → BOTTE_MESSAGE          (one shared lane)
//	fifo=true, group "G1" → BOTTE_MESSAGE#G1       (one lane per group)
func PartitionKey(doProcessFIFO bool, fifoGroupID string, id ksuid.KSUID) string {
	if !doProcessFIFO {
		return BotteMessageTaskID + "#" + id.String()
	}
	if fifoGroupID == "" {
		return BotteMessageTaskID
	}
	return BotteMessageTaskID + "#" + fifoGroupID
}

// IsValidPartitionKey reports whether pk has one of the shapes produced by
// PartitionKey.
func IsValidPartitionKey(pk string) bool {
	if pk == BotteMessageTaskID {
		return true
	}
	suffix, ok := strings.CutPrefix(pk, BotteMessageTaskID+"#")
	return ok && suffix != ""
}
