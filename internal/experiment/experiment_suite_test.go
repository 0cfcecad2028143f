package experiment

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestSceneBehaviour(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Scene Behaviour")
}
