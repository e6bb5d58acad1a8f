package gateway

import (
	"context"
	"fmt"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type TelegramGateway struct {
	Bot   *tgbotapi.BotAPI
	Chats *Conversations
}

func NewTelegramGateway(token string, chats *Conversations) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{
		Bot:   bot,
		Chats: chats,
	}, nil
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}

		log.Printf("[%s] %s", update.Message.From.UserName, update.Message.Text)

		chatID := update.Message.Chat.ID
		tg.Bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		reply := tg.Chats.Handle(ctx, fmt.Sprintf("%d", chatID), update.Message.Text)
		cancel()

		if err := tg.reply(chatID, reply); err != nil {
			log.Printf("Error replying to %d: %v", chatID, err)
		}
	}
	return nil
}

func (tg *TelegramGateway) reply(chatID int64, r Reply) error {
	if r.Attachment != nil {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: r.Attachment.Name, Bytes: r.Attachment.Data})
		doc.Caption = r.Text
		_, err := tg.Bot.Send(doc)
		return err
	}
	_, err := tg.Bot.Send(tgbotapi.NewMessage(chatID, r.Text))
	return err
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id := 0
	fmt.Sscanf(chatID, "%d", &id)
	if id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	_, err := tg.Bot.Send(tgbotapi.NewMessage(int64(id), text))
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
