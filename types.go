package studiocms

import "time"

// Backend table names.
const (
	tableProjects = "projects"
	tablePosts    = "posts"
	tableLeads    = "leads"
)

// Metrics is the headline result shown on a project card.
type Metrics struct {
	Improvement string `json:"improvement"`
	Metric      string `json:"metric"`
}

// Project is a portfolio entry.
type Project struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Category        string     `json:"category"`
	Tags            []string   `json:"tags"`
	ImageURL        string     `json:"image_url"`
	MobileImageURL  *string    `json:"mobile_image_url"`
	Gallery         []string   `json:"gallery"`
	Metrics         *Metrics   `json:"metrics"`
	LongDescription *string    `json:"long_description"`
	WebsiteURL      *string    `json:"website_url"`
	VideoURL        *string    `json:"video_url"`
	IsFeatured      bool       `json:"is_featured"`
	FeaturedOrder   *int       `json:"featured_order"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`
}

func (p *Project) fillDefaults() {
	if p.Tags == nil {
		p.Tags = []string{}
	}
}

// BlogPost is a long-form article.
type BlogPost struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Excerpt     string     `json:"excerpt"`
	Category    string     `json:"category"`
	Content     string     `json:"content"`
	ReadTime    *string    `json:"read_time"`
	Tags        []string   `json:"tags"`
	ImageURL    *string    `json:"image_url"`
	PublishedAt *time.Time `json:"published_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

func (p *BlogPost) fillDefaults() {
	if p.Tags == nil {
		p.Tags = []string{}
	}
}

// Lead is a contact-form submission.
type Lead struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Budget    *string   `json:"budget"`
	Timeline  *string   `json:"timeline"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// DashboardStats is the aggregate served to the admin dashboard.
type DashboardStats struct {
	Stats  DashboardCounts `json:"stats"`
	Recent DashboardRecent `json:"recent"`
	Error  string          `json:"error,omitempty"`
}

// DashboardCounts holds the headline numbers.
type DashboardCounts struct {
	TotalProjects int `json:"total_projects"`
	ProjectsToday int `json:"projects_today"`
	TotalPosts    int `json:"total_posts"`
	PostsToday    int `json:"posts_today"`
	TotalLeads    int `json:"total_leads"`
	LeadsToday    int `json:"leads_today"`
	LeadsThisWeek int `json:"leads_this_week"`
}

// DashboardRecent holds the newest rows of each resource.
type DashboardRecent struct {
	Projects []Project  `json:"projects"`
	Posts    []BlogPost `json:"posts"`
	Leads    []Lead     `json:"leads"`
}
