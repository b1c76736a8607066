package echoapi

import (
	"net/http"
	"net/mail"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsite/core"
)

type ContactRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Subject string `json:"subject" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=5000"`
}

func (cr *ContactRequest) Validate() error {
	cr.Name = core.CleanString(cr.Name)
	cr.Email = core.CleanString(cr.Email, true /* lower */)
	cr.Subject = core.CleanString(cr.Subject)
	cr.Message = core.CleanString(cr.Message)
	return core.Validate.Struct(cr)
}

type contactApi struct {
	mailSvc core.EmailService
	inbox   mail.Address
}

func registerContactAPI(g *echo.Group, mailSvc core.EmailService, conf *core.Config) {
	api := contactApi{mailSvc: mailSvc, inbox: conf.ContactInbox}
	g.POST("/contact", api.send)
}

// send forwards the message to the school inbox; replies go to the sender.
func (api *contactApi) send(ctx echo.Context) error {
	var data ContactRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ContactRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	api.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{api.inbox},
		ReplyTo:      &mail.Address{Name: data.Name, Address: data.Email},
		Subject:      data.Subject,
		TemplateName: "contact",
		TemplateData: data,
	})
	return ctx.JSON(http.StatusAccepted, SuccessResponse{Success: "Your message has been sent. Thank you!"})
}
