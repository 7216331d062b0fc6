package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/wppsync/internal/api"
	"github.com/matheus3301/wppsync/internal/tui/keys"
	"github.com/matheus3301/wppsync/internal/tui/model"
	"github.com/matheus3301/wppsync/internal/tui/ui"
	"github.com/matheus3301/wppsync/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	pageRoster  = "roster"
	pageThread  = "thread"
	pagePairing = "pairing"
)

const refreshAll = model.RefreshStatus | model.RefreshRoster | model.RefreshThread | model.RefreshPairing

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *ui.Pages
	layout    *tview.Flex
	vm        *model.ViewModel
	client    *api.Client
	registry  *keys.Registry
	flash     *ui.FlashModel
	flashBar  *ui.FlashBar
	statusBar *views.StatusBar
	roster    *views.Roster
	thread    *views.Thread
	pairing   *views.Pairing
	prompt    *ui.Prompt
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *api.Client, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     ui.NewPages(),
		vm:        model.NewViewModel(c),
		client:    c,
		registry:  keys.NewRegistry(),
		flash:     ui.NewFlashModel(),
		flashBar:  ui.NewFlashBar(theme),
		statusBar: views.NewStatusBar(sessionName),
		roster:    views.NewRoster(theme),
		thread:    views.NewThread(theme),
		pairing:   views.NewPairing(),
		prompt:    ui.NewPrompt(theme),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Description: "q:quit", Visible: true,
		Handler: a.Stop,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':', Description: ":cmd", Visible: true,
		Handler: func() { a.showPrompt("") },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyCtrlL, Description: "^L:reload",
		Handler: func() { go a.reload(refreshAll) },
	})

	a.registry.AddPage(pageRoster, &keys.Action{
		Key: tcell.KeyRune, Rune: '/', Description: "/:filter", Visible: true,
		Handler: func() { a.showPrompt("filter ") },
	})
	a.registry.AddPage(pageRoster, &keys.Action{
		Key: tcell.KeyRune, Rune: 'm', Description: "m:more", Visible: true,
		Handler: func() { go a.loadMoreContacts() },
	})

	a.registry.AddPage(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Description: "i:compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddPage(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'r', Description: "r:resync", Visible: true,
		Handler: func() { go a.resync() },
	})
	a.registry.AddPage(pageThread, &keys.Action{
		Key: tcell.KeyEscape, Description: "Esc:back", Visible: true,
		Handler: a.closeThread,
	})

	a.registry.AddPage(pagePairing, &keys.Action{
		Key: tcell.KeyEscape, Description: "Esc:back", Visible: true,
		Handler: func() {
			a.pages.Pop()
			a.focusPage()
		},
	})
}

func (a *App) setupCallbacks() {
	a.roster.SetSelectedFunc(func(_, _ int) {
		if id := a.roster.Selected(); id != "" {
			go a.open(id)
		}
	})

	a.thread.SetOnSend(func(text string) {
		go func() {
			if err := a.vm.Send(a.ctx, text); err != nil {
				a.flash.Err("send", err)
			}
			a.draw(model.RefreshThread)
		}()
	})

	a.prompt.SetOnSubmit(func(text string) {
		a.run(ParseCommand(text))
	})
	a.prompt.SetOnDone(a.hidePrompt)

	a.pages.SetOnChange(func(top string) {
		a.statusBar.SetHints(a.registry.Hints(top))
	})
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageRoster, a.roster, true, false)
	a.pages.AddPage(pageThread, a.thread, true, false)
	a.pages.AddPage(pagePairing, a.pairing, true, false)
	a.pages.Reset(pageRoster)

	a.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.statusBar, 1, 0, false)
	a.app.SetRoot(a.layout, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		focused := a.app.GetFocus()
		if focused == a.thread.Composer() && event.Key() == tcell.KeyEscape {
			a.app.SetFocus(a.thread.Messages())
			return nil
		}
		// Text inputs get every other key.
		if focused == a.prompt || focused == a.prompt.InputField || focused == a.thread.Composer() {
			return event
		}
		if a.registry.HandleEvent(a.pages.Current(), event) {
			return nil
		}
		return event
	})
}

func (a *App) showPrompt(text string) {
	a.prompt.SetText(text)
	a.layout.ResizeItem(a.prompt, 1, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.layout.ResizeItem(a.prompt, 0, 0)
	a.focusPage()
}

func (a *App) focusPage() {
	switch a.pages.Current() {
	case pageThread:
		a.app.SetFocus(a.thread.Messages())
	case pagePairing:
		a.app.SetFocus(a.pairing)
	default:
		a.app.SetFocus(a.roster)
	}
}

// run executes a ':' command. It is called on the draw goroutine.
func (a *App) run(cmd Command) {
	switch cmd.Name {
	case "q", "quit":
		a.Stop()
	case "filter", "f":
		a.roster.SetFilter(cmd.Args)
	case "open", "o":
		if cmd.Args == "" {
			a.flash.Warn("usage: open <contact>")
			return
		}
		go a.open(cmd.Args)
	case "more":
		go a.loadMoreContacts()
	case "resync":
		go a.resync()
	case "edit":
		id, text := cmd.Split()
		if id == "" || text == "" {
			a.flash.Warn("usage: edit <message id> <text>")
			return
		}
		go a.act("edit", func() (*api.ActionResult, error) { return a.vm.Edit(a.ctx, id, text) })
	case "delete", "del":
		id, _ := cmd.Split()
		if id == "" {
			a.flash.Warn("usage: delete <message id>")
			return
		}
		go a.act("delete", func() (*api.ActionResult, error) { return a.vm.Delete(a.ctx, id) })
	case "pair":
		a.pages.Push(pagePairing)
		go a.reload(model.RefreshPairing)
	default:
		a.flash.Warn(fmt.Sprintf("unknown command %q", cmd.Name))
	}
}

func (a *App) open(contact string) {
	a.flash.Info("opening " + contact + "...")
	if err := a.vm.Open(a.ctx, contact); err != nil {
		a.flash.Err("open", err)
		return
	}
	a.app.QueueUpdateDraw(func() {
		a.thread.Update(a.vm.Conversation())
		a.pages.Push(pageThread)
		a.focusPage()
	})
}

func (a *App) closeThread() {
	a.vm.Close()
	a.pages.Pop()
	a.focusPage()
}

func (a *App) loadMoreContacts() {
	if err := a.vm.LoadMoreContacts(a.ctx); err != nil {
		a.flash.Err("more contacts", err)
		return
	}
	a.draw(model.RefreshRoster)
}

func (a *App) resync() {
	if err := a.vm.Resync(a.ctx); err != nil {
		a.flash.Err("resync", err)
		return
	}
	a.draw(model.RefreshThread)
}

func (a *App) act(name string, fn func() (*api.ActionResult, error)) {
	res, err := fn()
	if err != nil {
		a.flash.Err(name, err)
		return
	}
	switch {
	case res.Error != "":
		a.flash.Warn(fmt.Sprintf("%s %s: local only, %s", name, res.MessageID, res.Error))
	case !res.Emitted:
		a.flash.Warn(fmt.Sprintf("%s %s: gateway disconnected, not sent", name, res.MessageID))
	default:
		a.flash.Info(fmt.Sprintf("%s %s: sent", name, res.MessageID))
	}
	a.draw(model.RefreshThread)
}

// reload fetches the given areas and redraws them. Call it off the draw
// goroutine.
func (a *App) reload(r model.Refresh) {
	loads := []struct {
		area model.Refresh
		name string
		fn   func(context.Context) error
	}{
		{model.RefreshStatus, "status", a.vm.LoadStatus},
		{model.RefreshRoster, "contacts", a.vm.LoadRoster},
		{model.RefreshThread, "messages", a.vm.ReloadThread},
		{model.RefreshPairing, "pairing", a.vm.LoadPairing},
	}
	for _, l := range loads {
		if !r.Has(l.area) {
			continue
		}
		if err := l.fn(a.ctx); err != nil && a.ctx.Err() == nil {
			a.flash.Err(l.name, err)
		}
	}
	a.draw(r)
}

// draw renders cached state for the given areas.
func (a *App) draw(r model.Refresh) {
	a.app.QueueUpdateDraw(func() {
		if r.Has(model.RefreshStatus) {
			a.statusBar.SetStatus(a.vm.Status())
		}
		if r.Has(model.RefreshRoster) {
			a.roster.Update(a.vm.Roster())
		}
		if r.Has(model.RefreshThread) && a.vm.Active() != "" {
			a.thread.Update(a.vm.Conversation())
		}
		if r.Has(model.RefreshPairing) {
			a.pairing.Update(a.vm.Pairing())
			a.followPairing()
		}
		a.flashBar.Update(a.flash.Current())
	})
}

// followPairing shows the pairing page while the gateway waits for a scan
// and leaves it once paired.
func (a *App) followPairing() {
	switch {
	case a.vm.NeedsPairing() && a.pages.Current() != pagePairing:
		a.pages.Push(pagePairing)
		a.focusPage()
	case !a.vm.NeedsPairing() && a.pages.Current() == pagePairing:
		if p := a.vm.Pairing(); p != nil && p.Paired {
			a.pages.Pop()
			a.focusPage()
			go a.reload(model.RefreshRoster)
		}
	}
}

// watch follows daemon events, re-subscribing when the stream breaks.
func (a *App) watch() {
	for a.ctx.Err() == nil {
		stream, err := a.client.Watch(a.ctx)
		if err == nil {
			err = a.consume(stream)
		}
		if a.ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, io.EOF) {
			a.flash.Err("event stream", err)
		}
		select {
		case <-time.After(time.Second):
			// Events may have been missed while disconnected.
			a.reload(refreshAll)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) consume(stream *api.EventStream) error {
	for {
		evt, err := stream.Recv()
		if err != nil {
			return err
		}
		if evt.Result != nil && evt.Result.Error != "" {
			a.flash.Warn(fmt.Sprintf("%s %s failed: %s", evt.Result.Action, evt.Result.MessageID, evt.Result.Error))
		}
		if r := a.vm.Affects(evt); r != 0 {
			a.reload(r)
		} else {
			a.draw(0)
		}
	}
}

func (a *App) tick() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.app.QueueUpdateDraw(func() {
				a.flashBar.Update(a.flash.Current())
				a.statusBar.SetStatus(a.vm.Status())
			})
		case <-a.ctx.Done():
			return
		}
	}
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run() error {
	go func() {
		a.reload(refreshAll)
		go a.tick()
		a.watch()
	}()
	defer a.cancel()
	return a.app.Run()
}

// Stop shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
