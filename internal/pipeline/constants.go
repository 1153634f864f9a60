package pipeline

// Buffer sizing
const (
	minCapacity        = 1 // Smallest capacity a buffer is created with
	bufferGrowthFactor = 2 // Factor for buffer growth
)
