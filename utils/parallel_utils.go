package utils

import "fmt"

// MailBox carries messages of type T between NP in-process parts. Each part
// posts into its own outbox, delivers it, and after a barrier drains its inbox.
type MailBox[T any] struct {
	NP           int
	MessageChans []chan *DynBuffer[T]    // One for each part
	PostMsgQs    []map[int]*DynBuffer[T] // One for each part, key is target part
	ReceiveMsgQs []*DynBuffer[T]         // One for each part
	MailFlag     []bool                  // Part has messages in its outbox
}

func NewMailBox[T any](NP int) *MailBox[T] {
	mb := &MailBox[T]{
		NP:           NP,
		MessageChans: make([]chan *DynBuffer[T], NP),
		PostMsgQs:    make([]map[int]*DynBuffer[T], NP),
		ReceiveMsgQs: make([]*DynBuffer[T], NP),
		MailFlag:     make([]bool, NP),
	}
	for n := 0; n < NP; n++ {
		mb.MessageChans[n] = make(chan *DynBuffer[T], NP) // Worst case is all-to-all
		mb.PostMsgQs[n] = make(map[int]*DynBuffer[T])
		mb.ReceiveMsgQs[n] = NewDynBuffer[T](0)
	}
	return mb
}

func (mb *MailBox[T]) PostMessage(myPart, targetPart int, msg T) {
	if targetPart < 0 || targetPart > mb.NP-1 {
		panic(fmt.Sprintf("target part %d out of bounds [0,%d)", targetPart, mb.NP))
	}
	tgt, exists := mb.PostMsgQs[myPart][targetPart]
	if !exists {
		tgt = NewDynBuffer[T](0)
		mb.PostMsgQs[myPart][targetPart] = tgt
	}
	tgt.Add(msg)
	mb.MailFlag[myPart] = true
}

func (mb *MailBox[T]) PostMessageToAll(myPart int, msg T) {
	for k := 0; k < mb.NP; k++ {
		if k != myPart {
			mb.PostMessage(myPart, k, msg)
		}
	}
}

// DeliverMyMessages hands every non-empty outbox of myPart to its target.
// Targets map iteration is unordered; receivers must not rely on sender order.
func (mb *MailBox[T]) DeliverMyMessages(myPart int) {
	if !mb.MailFlag[myPart] {
		return
	}
	for targetPart, msgBuffer := range mb.PostMsgQs[myPart] {
		if msgBuffer.Len() == 0 {
			continue
		}
		// The receiver owns the delivered buffer, the sender starts a new one
		mb.PostMsgQs[myPart][targetPart] = NewDynBuffer[T](0)
		mb.MessageChans[targetPart] <- msgBuffer
	}
	mb.MailFlag[myPart] = false
}

func (mb *MailBox[T]) ReceiveMyMessages(myPart int) {
	for {
		select {
		case msgBuffer := <-mb.MessageChans[myPart]:
			for _, msg := range msgBuffer.Cells() {
				mb.ReceiveMsgQs[myPart].Add(msg)
			}
		default:
			return
		}
	}
}

// Messages returns what myPart has received since the last clear.
func (mb *MailBox[T]) Messages(myPart int) []T {
	return mb.ReceiveMsgQs[myPart].Cells()
}

func (mb *MailBox[T]) ClearMyMessages(myPart int) {
	mb.ReceiveMsgQs[myPart].Reset()
}

// PartitionMap splits MaxIndex objects into ParallelDegree contiguous buckets.
type PartitionMap struct {
	MaxIndex       int // MaxIndex is partitioned into ParallelDegree partitions
	ParallelDegree int
	Partitions     [][2]int // Beginning and end index of partitions
}

func NewPartitionMap(ParallelDegree, maxIndex int) (pm *PartitionMap) {
	pm = &PartitionMap{
		MaxIndex:       maxIndex,
		ParallelDegree: ParallelDegree,
		Partitions:     make([][2]int, ParallelDegree),
	}
	for n := 0; n < ParallelDegree; n++ {
		pm.Partitions[n] = pm.Split1D(n)
	}
	return
}

// GetBucket returns the bucket holding kDim and its [min,max) range, or
// bucketNum = -1 when kDim is outside [0,MaxIndex).
func (pm *PartitionMap) GetBucket(kDim int) (bucketNum, min, max int) {
	if kDim < 0 || kDim >= pm.MaxIndex {
		return -1, 0, 0
	}
	var (
		Npart     = pm.MaxIndex / pm.ParallelDegree
		remainder = pm.MaxIndex % pm.ParallelDegree
		wide      = remainder * (Npart + 1) // first index past the wider buckets
	)
	if kDim < wide {
		bucketNum = kDim / (Npart + 1)
	} else {
		bucketNum = remainder + (kDim-wide)/Npart
	}
	min, max = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetBucketRange(bucketNum int) (kMin, kMax int) {
	kMin, kMax = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetLocalK(baseK int) (k, Kmax, bn int) {
	var (
		kmin, kmax int
	)
	bn, kmin, kmax = pm.GetBucket(baseK)
	Kmax = kmax - kmin
	k = baseK - kmin
	return
}

func (pm *PartitionMap) GetGlobalK(kLocal, bn int) (kGlobal int) {
	if bn == -1 {
		kGlobal = kLocal
		return
	}
	kGlobal = pm.Partitions[bn][0] + kLocal
	return
}

func (pm *PartitionMap) GetBucketDimension(bn int) (kMax int) {
	if bn == -1 {
		kMax = pm.MaxIndex
		return
	}
	var (
		k1, k2 = pm.GetBucketRange(bn)
	)
	kMax = k2 - k1
	return
}

func (pm *PartitionMap) Split1D(threadNum int) (bucket [2]int) {
	// This routine splits one dimension into pm.ParallelDegree pieces, with a maximum imbalance of one item
	var (
		Npart            = pm.MaxIndex / (pm.ParallelDegree)
		startAdd, endAdd int
		remainder        int
	)
	remainder = pm.MaxIndex % pm.ParallelDegree
	if remainder != 0 { // spread the remainder over the first chunks evenly
		if threadNum+1 > remainder {
			startAdd = remainder
			endAdd = 0
		} else {
			startAdd = threadNum
			endAdd = 1
		}
	}
	bucket[0] = threadNum*Npart + startAdd
	bucket[1] = bucket[0] + Npart + endAdd
	return
}
