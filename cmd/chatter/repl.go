package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/avelin/chatter/internal/chat"
	"github.com/avelin/chatter/internal/domain"
	"github.com/avelin/chatter/internal/engine"
	"github.com/go-playground/validator/v10"
)

// validate guards login/register input before any network call is attempted;
// this belongs to the presentation layer, not the session manager.
var validate = validator.New()

// validationError converts a validator failure to the domain form, keeping
// only the first offending field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &domain.ValidationError{
			Field:  strings.ToLower(verrs[0].Field()),
			Reason: verrs[0].Tag(),
		}
	}
	return err
}

func runREPL(ctx context.Context, eng *engine.Engine, in io.Reader, out io.Writer) {
	fmt.Fprintln(out, "chatter, /help pour la liste des commandes")

	scanner := bufio.NewScanner(in)
	for {
		active := eng.Conversations().Active()
		if active != nil {
			fmt.Fprintf(out, "[%s] > ", active.Title)
		} else {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return
		}
		if strings.HasPrefix(line, "/") {
			runCommand(ctx, eng, out, line)
			continue
		}
		sendAndPrint(ctx, eng, out, line)
	}
}

func sendAndPrint(ctx context.Context, eng *engine.Engine, out io.Writer, text string) {
	id := eng.Conversations().ActiveID()
	if err := eng.SendMessage(ctx, id, text); err != nil {
		fmt.Fprintf(out, "erreur : %v\n", err)
		return
	}
	if err := eng.Flush(ctx, id); err != nil {
		fmt.Fprintf(out, "erreur : %v\n", err)
		return
	}

	conv := eng.Conversations().Get(id)
	if conv == nil {
		return
	}
	if conv.LastError != "" {
		fmt.Fprintf(out, "erreur : %s\n", conv.LastError)
		return
	}
	if len(conv.Messages) > 0 {
		last := conv.Messages[len(conv.Messages)-1]
		if last.Role == domain.RoleAssistant {
			fmt.Fprintf(out, "%s\n", last.Content)
			for _, src := range last.Sources {
				fmt.Fprintf(out, "  source : %s (%.2f)\n", src.Text, src.Score)
			}
		}
	}
}

func runCommand(ctx context.Context, eng *engine.Engine, out io.Writer, line string) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/help":
		fmt.Fprintln(out, strings.TrimSpace(`
/new [titre]            nouvelle conversation
/list                   liste des conversations
/switch <id>            changer de conversation
/delete <id>            supprimer une conversation
/rename <id> <titre>    renommer une conversation
/search <texte>         rechercher
/export                 exporter la conversation active
/stats                  statistiques
/login <email> <mdp>    se connecter
/register <email> <mdp> <nom...>  créer un compte
/logout                 se déconnecter
/whoami                 session courante
/quit                   quitter`))

	case "/new":
		conv := eng.Conversations().Create(ctx, strings.Join(args, " "))
		fmt.Fprintf(out, "conversation créée : %s\n", conv.ID)

	case "/list":
		activeID := eng.Conversations().ActiveID()
		for _, c := range eng.Conversations().Conversations() {
			marker := " "
			if c.ID == activeID {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s  %s (%d messages)\n", marker, c.ID, c.Title, len(c.Messages))
		}

	case "/switch":
		if len(args) != 1 {
			fmt.Fprintln(out, "usage : /switch <id>")
			return
		}
		eng.Conversations().Switch(ctx, args[0])

	case "/delete":
		if len(args) != 1 {
			fmt.Fprintln(out, "usage : /delete <id>")
			return
		}
		eng.Conversations().Delete(ctx, args[0])

	case "/rename":
		if len(args) < 2 {
			fmt.Fprintln(out, "usage : /rename <id> <titre>")
			return
		}
		eng.Conversations().Rename(ctx, args[0], strings.Join(args[1:], " "))

	case "/search":
		for _, c := range eng.Conversations().Search(strings.Join(args, " ")) {
			fmt.Fprintf(out, "%s  %s\n", c.ID, c.Title)
		}

	case "/export":
		structured, transcript, err := eng.Conversations().Export(eng.Conversations().ActiveID())
		if err != nil {
			fmt.Fprintf(out, "erreur : %v\n", err)
			return
		}
		for _, artifact := range []chat.Artifact{structured, transcript} {
			if err := os.WriteFile(artifact.Filename, artifact.Content, 0o644); err != nil {
				fmt.Fprintf(out, "erreur : %v\n", err)
				return
			}
			fmt.Fprintf(out, "écrit : %s\n", artifact.Filename)
		}

	case "/stats":
		st := eng.Conversations().GetStats()
		fmt.Fprintf(out, "conversations : %d\nmessages : %d\nmoyenne : %.1f\nplus ancienne : %s\nplus récente : %s\n",
			st.TotalConversations, st.TotalMessages, st.AverageMessagesPerConversation,
			st.OldestConversation, st.NewestConversation)

	case "/login":
		if len(args) != 2 {
			fmt.Fprintln(out, "usage : /login <email> <mot de passe>")
			return
		}
		input := domain.LoginInput{Email: args[0], Password: args[1]}
		if err := validate.Struct(input); err != nil {
			fmt.Fprintf(out, "saisie invalide : %v\n", validationError(err))
			return
		}
		creds, err := eng.Sessions().Login(ctx, input.Email, input.Password)
		if err != nil {
			fmt.Fprintf(out, "échec de connexion : %v\n", err)
			return
		}
		fmt.Fprintf(out, "connecté : %s\n", creds.User.Email)

	case "/register":
		if len(args) < 3 {
			fmt.Fprintln(out, "usage : /register <email> <mot de passe> <nom complet>")
			return
		}
		profile := domain.RegisterProfile{
			Email:    args[0],
			Password: args[1],
			FullName: strings.Join(args[2:], " "),
		}
		if err := validate.Struct(profile); err != nil {
			fmt.Fprintf(out, "saisie invalide : %v\n", validationError(err))
			return
		}
		creds, err := eng.Sessions().Register(ctx, profile)
		if err != nil {
			fmt.Fprintf(out, "échec d'inscription : %v\n", err)
			return
		}
		fmt.Fprintf(out, "compte créé : %s\n", creds.User.Email)

	case "/logout":
		eng.Sessions().Logout(ctx)
		fmt.Fprintln(out, "déconnecté")

	case "/whoami":
		if user := eng.Sessions().CurrentUser(); user != nil {
			fmt.Fprintf(out, "%s (%s), état : %s\n", user.FullName, user.Email, eng.Sessions().State())
		} else {
			fmt.Fprintf(out, "anonyme, état : %s\n", eng.Sessions().State())
		}
		if msg := eng.Sessions().SessionError(); msg != "" {
			fmt.Fprintf(out, "! %s\n", msg)
		}

	default:
		fmt.Fprintf(out, "commande inconnue : %s\n", cmd)
	}
}
