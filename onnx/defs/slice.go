package defs

import (
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/onnx-shapeinfer/onnx"
	"github.com/gomlx/onnx-shapeinfer/shape"
)

// inferSlice computes the sliced lengths when starts, ends and the optional axes and steps are constants.
//
// The output rank is the input rank. Sliced axes whose input length is not a known value are left unresolved,
// and so are all axes if the slicing inputs are not constants.
func inferSlice(ctx onnx.InferenceContext) error {
	propagateElemType(ctx, 0, 0)
	if !hasInputShapes(ctx, 1) {
		return nil
	}
	in := inputShape(ctx, 0)
	rank := in.Rank()

	starts, startsOk, err := constantInt64s(ctx, 1)
	if err != nil {
		return err
	}
	ends, endsOk, err := constantInt64s(ctx, 2)
	if err != nil {
		return err
	}
	axes, axesOk, err := constantInt64s(ctx, 3)
	if err != nil {
		return err
	}
	steps, stepsOk, err := constantInt64s(ctx, 4)
	if err != nil {
		return err
	}
	// Optional inputs that are present must be constants too.
	if !startsOk || !endsOk ||
		(ctx.InputType(3) != nil && !axesOk) ||
		(ctx.InputType(4) != nil && !stepsOk) {
		setOutputShape(ctx, 0, shape.OfRank(rank))
		return nil
	}

	if len(starts) != len(ends) {
		return onnx.StructuralErrorf("Slice starts %v and ends %v must have the same length", starts, ends)
	}
	if !axesOk {
		axes = make([]int64, len(starts))
		for i := range axes {
			axes[i] = int64(i)
		}
	} else if len(axes) != len(starts) {
		return onnx.StructuralErrorf("Slice axes %v must have the same length as starts %v", axes, starts)
	}
	if !stepsOk {
		steps = make([]int64, len(starts))
		for i := range steps {
			steps[i] = 1
		}
	} else if len(steps) != len(starts) {
		return onnx.StructuralErrorf("Slice steps %v must have the same length as starts %v", steps, starts)
	}

	dims := in.Dims()
	sliced := sets.Make[int]()
	for i, rawAxis := range axes {
		axis, err := normalizeAxis(rawAxis, rank, "Slice axis")
		if err != nil {
			return err
		}
		if sliced.Has(axis) {
			return onnx.StructuralErrorf("Slice axes %v has duplicates", axes)
		}
		sliced.Insert(axis)

		step := steps[i]
		if step == 0 {
			return onnx.StructuralErrorf("Slice steps %v cannot have a 0 (axis %d)", steps, axis)
		}
		length, known := dims[axis].Value()
		if !known {
			dims[axis] = shape.UnknownDim()
			continue
		}
		dims[axis] = shape.Dim(slicedLength(length, starts[i], ends[i], step))
	}
	setOutputShape(ctx, 0, shape.Make(dims...))
	return nil
}

// slicedLength returns the number of elements selected from an axis of the given length.
// step must not be 0.
func slicedLength(length, start, end, step int64) int64 {
	if start < 0 {
		start += length
	}
	if end < 0 {
		end += length
	}
	if step < 0 {
		start = min(max(start, 0), length-1)
		end = min(max(end, -1), length)
	} else {
		start = min(max(start, 0), length)
		end = min(max(end, 0), length)
	}
	// ceil((end - start) / step), from the truncated quotient: adding step to diff could overflow.
	diff := end - start
	count, rem := diff/step, diff%step
	if rem != 0 && (diff > 0) == (step > 0) {
		count++
	}
	return max(count, 0)
}

// inferSplit splits the input along axis, into equal parts or into the lengths given by the split attribute.
func inferSplit(ctx onnx.InferenceContext) error {
	numOutputs := ctx.NumOutputs()
	for i := range numOutputs {
		propagateElemType(ctx, 0, i)
	}
	if !hasInputShapes(ctx, 1) || numOutputs == 0 {
		return nil
	}
	in := inputShape(ctx, 0)
	rawAxis, err := onnx.GetInt(ctx, "axis", 0)
	if err != nil {
		return err
	}
	axis, err := normalizeAxis(rawAxis, in.Rank(), "Split axis")
	if err != nil {
		return err
	}

	axisLength, lengthKnown := in.Dim(axis).Value()
	split, present, err := onnx.GetInts(ctx, "split")
	if err != nil {
		return err
	}
	if present {
		if len(split) != numOutputs {
			return onnx.StructuralErrorf("Split attribute split %v must have one entry per output (%d outputs)", split, numOutputs)
		}
		var total int64
		for _, s := range split {
			if s < 0 {
				return onnx.StructuralErrorf("Split attribute split %v cannot have negative entries", split)
			}
			total += s
		}
		if lengthKnown && total != axisLength {
			return onnx.ShapeMismatchErrorf("Split attribute split %v sums to %d, but axis %d of %s has length %d",
				split, total, axis, in, axisLength)
		}
	} else {
		if !lengthKnown {
			return nil
		}
		// Equal parts, the remainder spread over the first outputs.
		chunk := axisLength / int64(numOutputs)
		leftOver := axisLength - chunk*int64(numOutputs)
		split = make([]int64, numOutputs)
		for i := range split {
			split[i] = chunk
			if int64(i) < leftOver {
				split[i]++
			}
		}
	}

	for i, length := range split {
		setOutputShape(ctx, i, in.WithDim(axis, shape.Dim(length)))
	}
	return nil
}

// inferConcat concatenates inputs of the same rank along axis: the axis length is the sum of the input
// lengths, if all known, and all other axes are merged.
func inferConcat(ctx onnx.InferenceContext) error {
	propagateElemType(ctx, 0, 0)
	numInputs := ctx.NumInputs()
	if numInputs < 1 || !hasInputShapes(ctx, numInputs) {
		return nil
	}
	rank := inputShape(ctx, 0).Rank()
	axis, err := onnx.GetInt(ctx, "axis", 0)
	if err != nil {
		return err
	}
	if axis >= int64(rank) {
		return onnx.StructuralErrorf("Concat axis %d must be smaller than the rank %d", axis, rank)
	}
	if axis < 0 {
		// Negative axes are not resolved: only the element type is inferred.
		return nil
	}

	dims := make([]shape.Dimension, rank)
	allLengthsKnown := true
	var total int64
	for i := range numInputs {
		in := inputShape(ctx, i)
		if in.Rank() != rank {
			return onnx.ShapeMismatchErrorf("Concat inputs must have the same rank: input #0 has rank %d, input #%d is %s",
				rank, i, in)
		}
		for j, d := range in.Dims() {
			if j == int(axis) {
				if v, known := d.Value(); known {
					total += v
				} else {
					allLengthsKnown = false
				}
				continue
			}
			if err := shape.MergeDimension(d, &dims[j]); err != nil {
				return onnx.ShapeMismatchErrorf("Concat input #%d, axis %d: %v", i, j, err)
			}
		}
	}
	if allLengthsKnown {
		dims[axis] = shape.Dim(total)
	}
	setOutputShape(ctx, 0, shape.Make(dims...))
	return nil
}
