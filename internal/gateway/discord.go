package gateway

import (
	"bytes"
	"context"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Discord rejects messages longer than 2000 characters.
const discordMaxChars = 1990

type DiscordGateway struct {
	Session *discordgo.Session
	Chats   *Conversations

	done chan struct{}
}

func NewDiscordGateway(token string, chats *Conversations) (*DiscordGateway, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	g := &DiscordGateway{
		Session: dg,
		Chats:   chats,
		done:    make(chan struct{}),
	}
	dg.AddHandler(g.onMessage)
	return g, nil
}

// Start opens the websocket and blocks until Stop.
func (g *DiscordGateway) Start() error {
	if err := g.Session.Open(); err != nil {
		return err
	}
	log.Printf("Authorized on account %s", g.Session.State.User.Username)
	<-g.done
	return nil
}

func (g *DiscordGateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	log.Printf("[%s] %s", m.Author.Username, m.Content)
	s.ChannelTyping(m.ChannelID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	reply := g.Chats.Handle(ctx, m.ChannelID, m.Content)
	cancel()

	if err := g.reply(m.ChannelID, reply); err != nil {
		log.Printf("Error replying to %s: %v", m.ChannelID, err)
	}
}

func (g *DiscordGateway) reply(channelID string, r Reply) error {
	r.Text = truncateAt(r.Text, discordMaxChars-4)
	if r.Attachment != nil {
		_, err := g.Session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Content: r.Text,
			Files: []*discordgo.File{{
				Name:        r.Attachment.Name,
				ContentType: "application/zip",
				Reader:      bytes.NewReader(r.Attachment.Data),
			}},
		})
		return err
	}
	_, err := g.Session.ChannelMessageSend(channelID, r.Text)
	return err
}

func (g *DiscordGateway) Send(chatID string, text string) error {
	_, err := g.Session.ChannelMessageSend(chatID, text)
	return err
}

func (g *DiscordGateway) Stop() error {
	select {
	case <-g.done:
	default:
		close(g.done)
	}
	return g.Session.Close()
}
