package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"

	"go.uber.org/zap"
)

// CustomCommandPrefix префикс пользовательских команд
const CustomCommandPrefix = "!"

// CustomCommands пользовательские команды с готовыми ответами
type CustomCommands struct {
	store  repository.Store
	audit  *AuditLog
	logger *zap.Logger
}

// NewCustomCommands создает новый экземпляр CustomCommands
func NewCustomCommands(deps Deps) *CustomCommands {
	deps = deps.withDefaults()
	return &CustomCommands{store: deps.Store, audit: deps.Audit, logger: deps.Logger}
}

// Create регистрирует команду; имя должно начинаться с "!" и не содержать пробелов
func (c *CustomCommands) Create(ctx context.Context, actorID int64, name, reply, buttonText, buttonURL string) (*models.CustomCommand, error) {
	name = strings.TrimSpace(name)
	if !strings.HasPrefix(name, CustomCommandPrefix) || utf8.RuneCountInString(name) < 2 || strings.ContainsAny(name, " \t\n") {
		return nil, apperrors.InvalidInput("command name must look like !name")
	}
	if strings.TrimSpace(reply) == "" {
		return nil, apperrors.InvalidInput("reply text is required")
	}
	if (buttonText == "") != (buttonURL == "") {
		return nil, apperrors.InvalidInput("button needs both text and url")
	}

	cmd := &models.CustomCommand{
		CommandName: name,
		ReplyText:   reply,
		ButtonText:  buttonText,
		ButtonURL:   buttonURL,
		CreatedBy:   actorID,
	}
	err := c.store.InTx(ctx, "custom_command_create", func(tx repository.Tx) error {
		return tx.CreateCustomCommand(cmd)
	})
	if err != nil {
		return nil, err
	}

	c.audit.Record(AuditAdmin, SeverityInfo, "custom command %s created by %d", name, actorID)
	return cmd, nil
}

// Match ищет команду по первому слову сообщения
func (c *CustomCommands) Match(ctx context.Context, text string) (*models.CustomCommand, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], CustomCommandPrefix) {
		return nil, nil
	}

	var cmd *models.CustomCommand
	err := c.store.ReadTx(ctx, "custom_command_match", func(tx repository.Tx) error {
		var err error
		cmd, err = tx.GetCustomCommandByName(fields[0])
		return err
	})
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	return cmd, err
}

// Reply исходящее сообщение для команды
func (c *CustomCommands) Reply(cmd *models.CustomCommand, chatID int64, replyTo int) OutboundMessage {
	msg := OutboundMessage{ChatID: chatID, Text: cmd.ReplyText, ReplyTo: replyTo}
	if cmd.ButtonText != "" {
		msg.Buttons = [][]Button{{{Text: cmd.ButtonText, URL: cmd.ButtonURL}}}
	}
	return msg
}

// List все команды
func (c *CustomCommands) List(ctx context.Context) ([]models.CustomCommand, error) {
	var cmds []models.CustomCommand
	err := c.store.ReadTx(ctx, "custom_command_list", func(tx repository.Tx) error {
		var err error
		cmds, err = tx.ListCustomCommands()
		return err
	})
	return cmds, err
}

// Delete удаляет команду по id
func (c *CustomCommands) Delete(ctx context.Context, actorID int64, id uint) error {
	err := c.store.InTx(ctx, "custom_command_delete", func(tx repository.Tx) error {
		return tx.DeleteCustomCommand(id)
	})
	if err != nil {
		return err
	}

	c.audit.Record(AuditAdmin, SeverityWarning, "custom command %d deleted by %d", id, actorID)
	return nil
}
