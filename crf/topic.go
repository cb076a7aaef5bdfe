package crf

import (
	"math"

	"github.com/spokenlu/tricrf/example"
	"github.com/spokenlu/tricrf/param"
)

// TopicLogScore returns log(gamma[z]), the topic store's boundary->z bias
// plus z's observation weights against topicEvent's features, matching
// TriCRF1.h's topic term of
// P(y,z|x) = (1/Z(x)) * exp(sum lambda_topic*f_topic + sum lambda_seq^z*f_seq)
// before it is coupled to any sequence CRF.
func TopicLogScore(topicStore *param.Store, topicEvent example.Event, z int) float64 {
	bias := topicStore.Weight[topicStore.TransWeightIndex(param.BoundaryState, z)]
	return bias + nodeScore(topicStore, topicEvent, z)
}

// TopicLogScores returns TopicLogScore for every interned topic.
func TopicLogScores(topicStore *param.Store, topicEvent example.Event) []float64 {
	n := topicStore.NumStates()
	scores := make([]float64, n)
	for z := 0; z < n; z++ {
		scores[z] = TopicLogScore(topicStore, topicEvent, z)
	}
	return scores
}

// LogSumExp returns log(sum(exp(xs))), shifted by the maximum element so
// the summation stays in a representable range.
func LogSumExp(xs []float64) float64 {
	max := math.Inf(-1)
	for _, x := range xs {
		if x > max {
			max = x
		}
	}
	if math.IsInf(max, -1) {
		return max
	}
	sum := 0.0
	for _, x := range xs {
		sum += math.Exp(x - max)
	}
	return max + math.Log(sum)
}

// JointPosterior couples a topic prior to every topic's own sequence CRF
// partition function, implementing the triangular-chain's single joint
// partition Z(x) = sum_z gamma[z]*Z_z(x) (TriCRF1.h's m_Z). topicLogScores
// holds log(gamma[z]) for every topic and seqLogZ holds each topic's own
// sequence lattice's LogZ (log Z_z). It returns the topic marginal
// p(z|x) = gamma[z]*Z_z/Z(x) for every topic, plus the joint log
// partition log Z(x) the marginals were normalized against.
func JointPosterior(topicLogScores, seqLogZ []float64) (p []float64, jointLogZ float64) {
	n := len(topicLogScores)
	logJoint := make([]float64, n)
	for z := 0; z < n; z++ {
		logJoint[z] = topicLogScores[z] + seqLogZ[z]
	}
	jointLogZ = LogSumExp(logJoint)
	p = make([]float64, n)
	for z := 0; z < n; z++ {
		p[z] = math.Exp(logJoint[z] - jointLogZ)
	}
	return p, jointLogZ
}
