package ml

import "errors"

// DecisionTree is one regression tree of the boosted ensemble, stored as a
// flat node array with the root at index 0.
type DecisionTree struct {
	Nodes []TreeNode `json:"nodes"`
}

// TreeNode is a split or a leaf in a flat node array.
type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

// Score walks the tree: values <= threshold go left.
func (dt *DecisionTree) Score(features []float64) (float64, error) {
	if len(dt.Nodes) == 0 {
		return 0, ErrNotFitted
	}
	idx := 0
	for steps := 0; steps <= len(dt.Nodes); steps++ {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
	return 0, errors.New("invalid tree state")
}

func (dt *DecisionTree) validate(numFeatures int) error {
	if len(dt.Nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, node := range dt.Nodes {
		if node.IsLeaf {
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= numFeatures {
			return errors.New("feature index out of range")
		}
		if node.LeftChild <= i || node.LeftChild >= len(dt.Nodes) ||
			node.RightChild <= i || node.RightChild >= len(dt.Nodes) {
			return errors.New("invalid tree state")
		}
	}
	return nil
}

// treeBuilder grows one tree leaf-wise over binned features: the leaf with
// the largest gain splits next until numLeaves is reached.
type treeBuilder struct {
	params BoosterParams
	bins   *featureBins
	grad   []float64
	hess   []float64
}

type leafCandidate struct {
	node    int
	indices []int
	depth   int
	sumG    float64
	sumH    float64
	split   splitInfo
}

type splitInfo struct {
	feature int
	bin     int
	gain    float64
	valid   bool
}

const (
	minSumHessian = 1e-3
	minSplitGain  = 1e-9
)

type leafOutput struct {
	indices []int
	value   float64
}

func (b *treeBuilder) build(indices []int) (*DecisionTree, []leafOutput) {
	tree := &DecisionTree{Nodes: []TreeNode{{FeatureIdx: -1, LeftChild: -1, RightChild: -1, IsLeaf: true}}}
	root := b.newLeaf(0, indices, 0)
	leaves := []*leafCandidate{root}

	maxLeaves := b.params.NumLeaves
	for len(leaves) < maxLeaves {
		best := -1
		for i, leaf := range leaves {
			if !leaf.split.valid {
				continue
			}
			if best == -1 || leaf.split.gain > leaves[best].split.gain {
				best = i
			}
		}
		if best == -1 {
			break
		}
		leaf := leaves[best]
		left, right := b.partition(leaf.indices, leaf.split)

		leftNode := len(tree.Nodes)
		rightNode := leftNode + 1
		tree.Nodes[leaf.node] = TreeNode{
			FeatureIdx: leaf.split.feature,
			Threshold:  b.bins.threshold(leaf.split.feature, leaf.split.bin),
			LeftChild:  leftNode,
			RightChild: rightNode,
		}
		tree.Nodes = append(tree.Nodes,
			TreeNode{FeatureIdx: -1, LeftChild: -1, RightChild: -1, IsLeaf: true},
			TreeNode{FeatureIdx: -1, LeftChild: -1, RightChild: -1, IsLeaf: true},
		)

		leaves[best] = b.newLeaf(leftNode, left, leaf.depth+1)
		leaves = append(leaves, b.newLeaf(rightNode, right, leaf.depth+1))
	}

	outputs := make([]leafOutput, 0, len(leaves))
	for _, leaf := range leaves {
		value := 0.0
		if leaf.sumH > 0 {
			value = -leaf.sumG / leaf.sumH * b.params.LearningRate
		}
		tree.Nodes[leaf.node].Value = value
		outputs = append(outputs, leafOutput{indices: leaf.indices, value: value})
	}
	return tree, outputs
}

func (b *treeBuilder) newLeaf(node int, indices []int, depth int) *leafCandidate {
	leaf := &leafCandidate{node: node, indices: indices, depth: depth}
	for _, i := range indices {
		leaf.sumG += b.grad[i]
		leaf.sumH += b.hess[i]
	}
	if b.params.MaxDepth > 0 && depth >= b.params.MaxDepth {
		return leaf
	}
	if len(indices) < 2*b.params.MinChildSamples || leaf.sumH < minSumHessian {
		return leaf
	}
	leaf.split = b.findBestSplit(leaf)
	return leaf
}

func (b *treeBuilder) findBestSplit(leaf *leafCandidate) splitInfo {
	best := splitInfo{feature: -1}
	parent := leaf.sumG * leaf.sumG / leaf.sumH
	minChild := b.params.MinChildSamples
	if minChild < 1 {
		minChild = 1
	}
	for f := 0; f < b.bins.numFeatures(); f++ {
		n := b.bins.numBins(f)
		if n < 2 {
			continue
		}
		gHist := make([]float64, n)
		hHist := make([]float64, n)
		cHist := make([]int, n)
		column := b.bins.binned[f]
		for _, i := range leaf.indices {
			bin := column[i]
			gHist[bin] += b.grad[i]
			hHist[bin] += b.hess[i]
			cHist[bin]++
		}

		var gl, hl float64
		cl := 0
		total := len(leaf.indices)
		for bin := 0; bin < n-1; bin++ {
			gl += gHist[bin]
			hl += hHist[bin]
			cl += cHist[bin]
			cr := total - cl
			if cl < minChild {
				continue
			}
			if cr < minChild {
				break
			}
			gr := leaf.sumG - gl
			hr := leaf.sumH - hl
			if hl < minSumHessian || hr < minSumHessian {
				continue
			}
			gain := gl*gl/hl + gr*gr/hr - parent
			if gain > minSplitGain && (!best.valid || gain > best.gain) {
				best = splitInfo{feature: f, bin: bin, gain: gain, valid: true}
			}
		}
	}
	return best
}

func (b *treeBuilder) partition(indices []int, split splitInfo) (left, right []int) {
	column := b.bins.binned[split.feature]
	for _, i := range indices {
		if int(column[i]) <= split.bin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}
