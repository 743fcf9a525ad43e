// Package tui is the terminal interface. It renders cache snapshots pushed
// by the api services and never blocks on the network.
package tui

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/transport"
	"github.com/matheus3301/chatsync/internal/tui/keys"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/matheus3301/chatsync/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	pageList   = "Conversations"
	pageThread = "Thread"
	pageInfo   = "Details"
	pageHelp   = "Help"
)

// Services are the api services the interface is bound to.
type Services struct {
	Chats    *api.ChatService
	Messages *api.MessageService
	Users    *api.UserService
	Session  *api.SessionService
}

type failedSend struct {
	conversationID string
	text           string
}

// App is the main TUI application shell.
type App struct {
	app         *tview.Application
	theme       *ui.Theme
	root        *tview.Flex
	pages       *ui.Pages
	crumbs      *ui.Crumbs
	menu        *ui.Menu
	prompt      *ui.Prompt
	notices     *ui.Notices
	noticeBar   *ui.NoticeBar
	sessionInfo *ui.SessionInfo
	registry    *keys.Registry
	components  map[string]ui.Component

	list   *views.ConversationList
	thread *views.MessageThread
	info   *views.ConversationInfo
	help   *views.HelpView

	svc Services
	me  string

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	unsubs      []func()
	unsubThread func()
	lastFailed  *failedSend
}

// NewApp creates the TUI application for the local user me.
func NewApp(svc Services, me string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:         tview.NewApplication(),
		theme:       theme,
		pages:       ui.NewPages(),
		crumbs:      ui.NewCrumbs(theme),
		menu:        ui.NewMenu(theme),
		prompt:      ui.NewPrompt(theme),
		notices:     ui.NewNotices(nil),
		noticeBar:   ui.NewNoticeBar(theme),
		sessionInfo: ui.NewSessionInfo(theme),
		registry:    keys.NewRegistry(),
		svc:         svc,
		me:          me,
		ctx:         ctx,
		cancel:      cancel,
	}
	a.list = views.NewConversationList(theme, me, svc.Users.DisplayName)
	a.thread = views.NewMessageThread(theme, me, svc.Users.DisplayName)
	a.info = views.NewConversationInfo(theme)
	a.help = views.NewHelpView(theme)
	a.components = map[string]ui.Component{
		pageList:   a.list,
		pageThread: a.thread,
		pageInfo:   a.info,
		pageHelp:   a.help,
	}
	for _, c := range a.components {
		c.Init()
	}

	a.setupBindings()
	a.menu.SetGlobal(a.globalHints())
	a.help.SetSections(a.helpSections())
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q',
		Description: "Quit",
		Handler: func() { a.app.Stop() },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '?',
		Description: "Help",
		Handler: func() { a.push(pageHelp, pageHelp) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':',
		Description: "Command",
		Handler: func() { a.showPrompt(ui.PromptCommand) },
	})

	a.registry.AddView(pageList, &keys.Action{
		Key: tcell.KeyRune, Rune: '/',
		Description: "Filter",
		Handler: func() { a.showPrompt(ui.PromptFilter) },
	})
	a.registry.AddView(pageList, &keys.Action{
		Key: tcell.KeyRune, Rune: '0',
		Description: "Clear filter",
		Handler: func() { a.list.ClearFilter() },
	})

	a.registry.AddView(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i',
		Description: "Compose",
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'd',
		Description: "Details",
		Handler: func() { a.showInfo() },
	})
	a.registry.AddView(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'r',
		Description: "Retry send",
		Handler: func() { a.retrySend() },
	})
}

func (a *App) globalHints() []ui.MenuHint {
	hints := make([]ui.MenuHint, 0, len(a.registry.Global))
	for _, act := range a.registry.Global {
		hints = append(hints, ui.MenuHint{Key: act.KeyName(), Description: act.Description})
	}
	return hints
}

func (a *App) helpSections() []views.HelpSection {
	entries := func(actions []*keys.Action, extra ...views.HelpEntry) []views.HelpEntry {
		out := make([]views.HelpEntry, 0, len(actions)+len(extra))
		for _, act := range actions {
			out = append(out, views.HelpEntry{Key: act.KeyName(), Description: act.Description})
		}
		return append(out, extra...)
	}
	return []views.HelpSection{
		{Title: "Global", Entries: entries(a.registry.Global,
			views.HelpEntry{Key: "Esc", Description: "Back"},
			views.HelpEntry{Key: "Ctrl-C", Description: "Quit immediately"},
		)},
		{Title: pageList, Entries: entries(a.registry.Views[pageList],
			views.HelpEntry{Key: "Enter", Description: "Open"},
			views.HelpEntry{Key: "1-9", Description: "Open the Nth conversation"},
		)},
		{Title: pageThread, Entries: entries(a.registry.Views[pageThread],
			views.HelpEntry{Key: "Enter", Description: "Send (in the composer)"},
			views.HelpEntry{Key: "Esc", Description: "Leave the composer"},
		)},
		{Title: "Commands", Entries: commandHelp},
	}
}

func (a *App) setupCallbacks() {
	a.list.SetSelectedFunc(func(row, _ int) {
		if c, ok := a.list.ByIndex(row); ok {
			a.openConversation(c)
		}
	})

	a.thread.SetOnSend(func(text string) {
		if id := a.thread.ConversationID(); id != "" {
			go a.send(id, text)
		}
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptFilter:
			a.list.SetFilter(text)
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)
	a.prompt.SetCompletions(a.list.Complete)

	a.pages.SetOnChange(func(labels []string) {
		a.crumbs.Update(labels)
		if c, ok := a.components[a.pages.Current()]; ok {
			a.menu.Update(c.Hints())
		}
	})
}

func (a *App) setupLayout() {
	logo := ui.NewLogo(a.theme)
	header := tview.NewFlex().
		AddItem(a.sessionInfo, 0, 2, false).
		AddItem(a.menu, 0, 2, false).
		AddItem(logo, 14, 0, false)

	a.pages.AddPage(pageList, a.list, true, false)
	a.pages.AddPage(pageThread, a.thread, true, false)
	a.pages.AddPage(pageInfo, a.info, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.noticeBar, 1, 0, false)
	a.root.SetBackgroundColor(a.theme.Bg)

	a.pages.Reset(pageList, pageList)
	a.app.SetRoot(a.root, true)
	a.app.SetFocus(a.list)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		current := a.pages.Current()

		// Let text input widgets handle all keys normally.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			if event.Key() == tcell.KeyEscape && current == pageThread {
				a.app.SetFocus(a.thread.Messages())
				return nil
			}
			return event
		}

		if event.Key() == tcell.KeyEscape {
			a.back()
			return nil
		}

		if current == pageList && event.Key() == tcell.KeyRune && event.Rune() >= '1' && event.Rune() <= '9' {
			if c, ok := a.list.ByIndex(int(event.Rune() - '0')); ok {
				a.openConversation(c)
			}
			return nil
		}

		if a.registry.HandleEvent(current, event) {
			return nil
		}
		return event
	})
}

func (a *App) push(page, label string) {
	popped, fresh := a.pages.Push(page, label)
	for _, name := range popped {
		a.leave(name)
	}
	if fresh {
		a.components[page].Start()
	}
	a.focusCurrent()
}

func (a *App) back() {
	if name := a.pages.Pop(); name != "" {
		a.leave(name)
		a.focusCurrent()
	}
}

func (a *App) leave(page string) {
	a.components[page].Stop()
	if page == pageThread {
		a.closeThread()
	}
}

func (a *App) focusCurrent() {
	switch a.pages.Current() {
	case pageList:
		a.app.SetFocus(a.list)
	case pageThread:
		a.app.SetFocus(a.thread.Messages())
	case pageInfo:
		a.app.SetFocus(a.info)
	case pageHelp:
		a.app.SetFocus(a.help)
	}
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.focusCurrent()
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "q", "quit":
		a.app.Stop()
	case "h", "help":
		a.push(pageHelp, pageHelp)
	case "chat":
		c, ok := a.list.ByName(cmd.Arg())
		if !ok {
			a.notices.Warn("no conversation matches " + cmd.Arg())
			return
		}
		a.openConversation(c)
	case "new":
		recipients, name := cmd.Named()
		go a.createConversation(name, recipients)
	case "":
	default:
		a.notices.Warn("unknown command: " + cmd.Name)
	}
}

func (a *App) openConversation(c model.Conversation) {
	title := a.list.Title(c)
	a.closeThread()
	a.thread.Open(c.ID, title)

	unsub := a.svc.Messages.SubscribeMessages(c.ID, func(e cache.Entry[[]model.Message]) {
		a.app.QueueUpdateDraw(func() {
			if a.thread.ConversationID() == c.ID {
				a.thread.Update(e)
			}
		})
	})
	a.mu.Lock()
	a.unsubThread = unsub
	a.mu.Unlock()

	a.thread.Update(a.svc.Messages.Messages(c.ID))
	a.svc.Messages.LoadMessages(c.ID)
	a.push(pageThread, title)
}

func (a *App) closeThread() {
	a.mu.Lock()
	unsub := a.unsubThread
	a.unsubThread = nil
	a.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (a *App) showInfo() {
	id := a.thread.ConversationID()
	e := a.svc.Chats.Conversation(id)
	if !e.HasValue {
		return
	}
	a.info.Update(e.Value, a.list.Title(e.Value), a.svc.Users.DisplayName)
	a.push(pageInfo, pageInfo)
}

// send runs off the UI goroutine: the placeholder merge notifies observers
// synchronously and they queue draws.
func (a *App) send(conversationID, text string) {
	p, err := a.svc.Messages.Send(a.ctx, conversationID, text)
	if err != nil {
		a.notices.Err(err)
		return
	}
	if _, err := p.Wait(a.ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		msg, retry := sendFailure(err)
		if retry {
			a.mu.Lock()
			a.lastFailed = &failedSend{conversationID: conversationID, text: text}
			a.mu.Unlock()
		}
		a.notices.Post(ui.LevelError, msg)
	}
}

func (a *App) retrySend() {
	a.mu.Lock()
	f := a.lastFailed
	a.lastFailed = nil
	a.mu.Unlock()
	if f == nil {
		a.notices.Info("nothing to retry")
		return
	}
	go a.send(f.conversationID, f.text)
}

func (a *App) createConversation(name string, recipients []string) {
	conv, err := a.svc.Chats.CreateConversation(a.ctx, name, recipients)
	switch {
	case errors.Is(err, transport.ErrConflict):
		a.notices.Warn("conversation already exists")
		return
	case err != nil:
		a.notices.Err(err)
		return
	}
	a.app.QueueUpdateDraw(func() { a.openConversation(conv) })
}

// bind subscribes the views to the cache and the bus.
func (a *App) bind() {
	a.unsubs = append(a.unsubs,
		a.svc.Chats.SubscribeConversations(func(e cache.Entry[[]model.Conversation]) {
			a.app.QueueUpdateDraw(func() { a.list.Update(e) })
		}),
		a.svc.Users.SubscribeUsers(func(cache.Entry[model.User]) {
			a.app.QueueUpdateDraw(func() {
				a.list.Refresh()
				a.thread.Refresh()
			})
		}),
	)

	go func() {
		_ = a.svc.Session.WatchLink(a.ctx, func(evt bus.Event) {
			if level, text, ok := linkNotice(evt); ok {
				a.notices.Post(level, text)
			}
			if evt.Kind == bus.PushReset {
				// Lists were invalidated; refetch what is on screen.
				a.svc.Chats.LoadConversations()
				if id := a.thread.ConversationID(); id != "" {
					a.svc.Messages.LoadMessages(id)
				}
			}
			a.app.QueueUpdateDraw(a.updateSession)
		})
	}()

	go func() {
		for {
			select {
			case <-a.notices.Changed():
				a.app.QueueUpdateDraw(a.showNotice)
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

func (a *App) showNotice() {
	a.noticeBar.Show(a.notices.Current())
}

func (a *App) updateSession() {
	st := a.svc.Session.Status()
	a.sessionInfo.Update(ui.SessionData{
		Profile:       st.Profile,
		User:          st.UserID,
		Server:        st.ServerURL,
		Link:          string(st.Link),
		Conversations: st.Conversations,
		Threads:       st.MessageLists,
		Users:         st.Users,
		Uptime:        st.Uptime,
	})
}

func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.app.QueueUpdateDraw(func() {
					a.updateSession()
					a.showNotice()
				})
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run() error {
	a.bind()
	a.list.Update(a.svc.Chats.Conversations())
	a.updateSession()
	a.menu.Update(a.list.Hints())
	a.svc.Chats.LoadConversations()
	a.startRefreshLoop()

	defer a.Stop()
	return a.app.Run()
}

// Stop shuts down the TUI and drops its subscriptions.
func (a *App) Stop() {
	a.cancel()
	a.closeThread()
	for _, unsub := range a.unsubs {
		unsub()
	}
	a.unsubs = nil
	a.app.Stop()
}
