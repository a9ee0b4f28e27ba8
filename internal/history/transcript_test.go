package history_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"sglang-chat/internal/history"
)

var _ = Describe("Transcript", func() {
	var transcript *history.Transcript

	BeforeEach(func() {
		transcript = history.NewTranscript()
	})

	It("starts empty with a session id", func() {
		Expect(transcript.Len()).To(Equal(0))
		Expect(transcript.Turns()).To(BeEmpty())
		Expect(transcript.ID()).NotTo(BeEmpty())

		_, ok := transcript.Last()
		Expect(ok).To(BeFalse())
	})

	It("keeps turns in insertion order", func() {
		transcript.Append(history.RoleUser, "Hi")
		transcript.Append(history.RoleAssistant, "Hi there")
		transcript.Append(history.RoleUser, "How are you?")

		turns := transcript.Turns()
		Expect(turns).To(HaveLen(3))
		Expect(turns[0].Role).To(Equal(history.RoleUser))
		Expect(turns[0].Content).To(Equal("Hi"))
		Expect(turns[1].Role).To(Equal(history.RoleAssistant))
		Expect(turns[2].Content).To(Equal("How are you?"))

		last, ok := transcript.Last()
		Expect(ok).To(BeTrue())
		Expect(last.Content).To(Equal("How are you?"))
	})

	It("returns a copy from Turns", func() {
		transcript.Append(history.RoleUser, "original")

		turns := transcript.Turns()
		turns[0].Content = "mutated"

		Expect(transcript.Turns()[0].Content).To(Equal("original"))
	})

	Describe("Reset", func() {
		It("empties a populated transcript", func() {
			for i := 0; i < 5; i++ {
				transcript.Append(history.RoleUser, "q")
				transcript.Append(history.RoleAssistant, "a")
			}

			transcript.Reset()
			Expect(transcript.Len()).To(Equal(0))
		})

		It("is safe on an empty transcript", func() {
			transcript.Reset()
			transcript.Reset()
			Expect(transcript.Len()).To(Equal(0))
			Expect(transcript.Turns()).To(BeEmpty())
		})
	})

	Describe("Role", func() {
		It("parses known roles", func() {
			for _, s := range []string{"system", "user", "assistant"} {
				r, err := history.ParseRole(s)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(r)).To(Equal(s))
			}
		})

		It("rejects unknown roles", func() {
			_, err := history.ParseRole("tool")
			Expect(err).To(HaveOccurred())
		})
	})
})
