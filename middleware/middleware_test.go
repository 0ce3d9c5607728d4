package middleware_test

import (
	"bytes"
	"net/http/httptest"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog/log"

	"github.com/penny-vault/pv-nav/middleware"
)

var _ = Describe("Middleware", func() {
	var (
		app *fiber.App
		buf *bytes.Buffer
	)

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		log.Logger = log.Output(buf)
		DeferCleanup(func() { log.Logger = log.Output(GinkgoWriter) })

		app = fiber.New()
		app.Use(middleware.NewLogger())
		app.Use(middleware.NewTracer())
		app.Get("/ok", func(c *fiber.Ctx) error {
			return c.SendString("ok")
		})
		app.Get("/missing", func(c *fiber.Ctx) error {
			return fiber.ErrNotFound
		})
	})

	DescribeTable("logs each request at a level matching its status",
		func(path string, status int, level string) {
			resp, err := app.Test(httptest.NewRequest("GET", path, nil))
			Expect(err).To(BeNil())
			Expect(resp.StatusCode).To(Equal(status))
			Expect(buf.String()).To(ContainSubstring(`"level":"` + level + `"`))
			Expect(buf.String()).To(ContainSubstring(`"Path":"` + path + `"`))
		},
		Entry("success", "/ok", fiber.StatusOK, "info"),
		Entry("client error", "/missing", fiber.StatusNotFound, "warn"),
	)
})
