// dashboard.go — сводные счётчики для дашбордов портала.
package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/arturkryukov/hostportal/internal/domain/model"
	"github.com/arturkryukov/hostportal/internal/repository"
)

// DashboardService — агрегаты по пользователям, сайтам, проектам и обращениям.
type DashboardService struct {
	users    repository.UserRepository
	sites    repository.SiteRepository
	projects repository.ProjectRepository
	tickets  repository.TicketRepository
}

// NewDashboardService создаёт сервис дашборда.
func NewDashboardService(
	users repository.UserRepository,
	sites repository.SiteRepository,
	projects repository.ProjectRepository,
	tickets repository.TicketRepository,
) *DashboardService {
	return &DashboardService{users: users, sites: sites, projects: projects, tickets: tickets}
}

// Summary считает ресурсы, видимые актору. Для администратора — по всем владельцам,
// включая число пользователей. Запросы выполняются параллельно.
func (s *DashboardService) Summary(ctx context.Context, actor Actor) (*model.Summary, error) {
	scope := actor.ownerScope()
	open := model.TicketStatusOpen
	var sum model.Summary

	g, gctx := errgroup.WithContext(ctx)

	if actor.IsAdmin() {
		g.Go(func() error {
			n, err := s.users.Count(gctx)
			sum.Users = n
			return err
		})
	}
	g.Go(func() error {
		n, err := s.sites.Count(gctx, scope)
		sum.Sites = n
		return err
	})
	g.Go(func() error {
		n, err := s.projects.Count(gctx, scope)
		sum.Projects = n
		return err
	})
	g.Go(func() error {
		n, err := s.tickets.Count(gctx, scope, &open)
		sum.OpenTickets = n
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("сводка дашборда: %w", err)
	}
	return &sum, nil
}
