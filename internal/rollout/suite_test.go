package rollout

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestStatusEvaluator(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Rollout Status Evaluator Suite")
}
