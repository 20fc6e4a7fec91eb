package model

// Point is an image-space coordinate, origin top-left.
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// Zone is the cashier zone, either a rectangle or an arbitrary polygon.
// Exactly one of Rectangle or Polygon should be set; Rectangle takes
// precedence if both are present.
type Zone struct {
	Rectangle *Rectangle `yaml:"rectangle,omitempty" json:"rectangle,omitempty"`
	Polygon   []Point    `yaml:"polygon,omitempty" json:"polygon,omitempty"`
}

// Rectangle is an axis-aligned cashier zone.
type Rectangle struct {
	X1 float64 `yaml:"x1" json:"x1"`
	Y1 float64 `yaml:"y1" json:"y1"`
	X2 float64 `yaml:"x2" json:"x2"`
	Y2 float64 `yaml:"y2" json:"y2"`
}

// Contains reports whether p falls inside the zone, using point-in-rectangle
// or point-in-polygon depending on which is configured. The center rule is
// authoritative: no bbox-overlap heuristic is permitted here.
func (z Zone) Contains(p Point) bool {
	if z.Rectangle != nil {
		r := z.Rectangle
		return p.X >= r.X1 && p.X <= r.X2 && p.Y >= r.Y1 && p.Y <= r.Y2
	}
	return pointInPolygon(p, z.Polygon)
}

// pointInPolygon implements the standard ray-casting test.
func pointInPolygon(p Point, poly []Point) bool {
	if len(poly) < 3 {
		return false
	}
	inside := false
	j := len(poly) - 1
	for i := 0; i < len(poly); i++ {
		pi, pj := poly[i], poly[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) {
			xIntersect := (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y) + pi.X
			if p.X < xIntersect {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// ModelPaths locates the on-disk weight files a worker loads once at start.
// Missing pose or fire model is a fatal ConfigError; ObjectModelPath is
// optional.
type ModelPaths struct {
	PosePath   string `yaml:"pose_model_path" json:"pose_model_path"`
	ObjectPath string `yaml:"object_model_path,omitempty" json:"object_model_path,omitempty"`
	FirePath   string `yaml:"fire_model_path" json:"fire_model_path"`
}

// Credential is the RTSP username/password pair. Password may be stored
// encrypted at rest (see internal/security.Vault); PasswordEncrypted, if
// non-nil, takes precedence over Password when both are present.
type Credential struct {
	Username          string                    `yaml:"username,omitempty" json:"username,omitempty"`
	Password          string                    `yaml:"password,omitempty" json:"password,omitempty"`
	PasswordEncrypted *EncryptedCredentialFields `yaml:"password_encrypted,omitempty" json:"password_encrypted,omitempty"`
}

// EncryptedCredentialFields mirrors security.EncryptedCredential without
// importing internal/security from internal/model, keeping the data model
// dependency-free.
type EncryptedCredentialFields struct {
	KeyID      string `yaml:"key_id" json:"key_id"`
	Nonce      string `yaml:"nonce" json:"nonce"`
	Ciphertext string `yaml:"ciphertext" json:"ciphertext"`
	Tag        string `yaml:"tag" json:"tag"`
}

// CameraConfig is a read-only snapshot taken by the worker at start. Created
// and edited out of band; reload happens only by restarting the worker that
// owns this camera.
type CameraConfig struct {
	CameraID string `yaml:"camera_id" json:"camera_id"`
	Name     string `yaml:"name" json:"name"`
	RTSPURL  string `yaml:"rtsp_url" json:"rtsp_url"`

	Credential Credential `yaml:"credential,omitempty" json:"credential,omitempty"`

	EnableCash     bool `yaml:"enable_cash" json:"enable_cash"`
	EnableViolence bool `yaml:"enable_violence" json:"enable_violence"`
	EnableFire     bool `yaml:"enable_fire" json:"enable_fire"`

	CashConfidence     float64 `yaml:"cash_confidence" json:"cash_confidence"`
	ViolenceConfidence float64 `yaml:"violence_confidence" json:"violence_confidence"`
	FireConfidence     float64 `yaml:"fire_confidence" json:"fire_confidence"`

	HandTouchDistance     int     `yaml:"hand_touch_distance" json:"hand_touch_distance"`
	PoseConfidenceFloor   float64 `yaml:"pose_confidence_floor" json:"pose_confidence_floor"`
	MotionThreshold       float64 `yaml:"motion_threshold" json:"motion_threshold"`

	CashierZone Zone `yaml:"cashier_zone" json:"cashier_zone"`

	MinTransactionFrames int `yaml:"min_transaction_frames" json:"min_transaction_frames"`
	MinViolenceFrames    int `yaml:"min_violence_frames" json:"min_violence_frames"`
	MinFireFrames        int `yaml:"min_fire_frames" json:"min_fire_frames"`

	CashCooldownFrames     int `yaml:"cash_cooldown_frames" json:"cash_cooldown_frames"`
	ViolenceCooldownFrames int `yaml:"violence_cooldown_frames" json:"violence_cooldown_frames"`
	FireCooldownFrames     int `yaml:"fire_cooldown_frames" json:"fire_cooldown_frames"`

	BufferSeconds int `yaml:"buffer_seconds" json:"buffer_seconds"`
	FPS           int `yaml:"fps" json:"fps"`
	DetectEveryN  int `yaml:"detect_every_n" json:"detect_every_n"`

	Models ModelPaths `yaml:"models" json:"models"`
}

// DefaultsApplied returns a copy of c with conservative defaults filled in
// for any zero-valued tunable, per spec.md §9's resolved Open Question:
// temporal gates are configuration, never hard-coded into detector logic.
func (c CameraConfig) DefaultsApplied() CameraConfig {
	if c.MinTransactionFrames == 0 {
		c.MinTransactionFrames = 1
	}
	if c.MinViolenceFrames == 0 {
		c.MinViolenceFrames = 15
	}
	if c.MinFireFrames == 0 {
		c.MinFireFrames = 10
	}
	if c.CashCooldownFrames == 0 {
		c.CashCooldownFrames = 45
	}
	if c.ViolenceCooldownFrames == 0 {
		c.ViolenceCooldownFrames = 90
	}
	if c.FireCooldownFrames == 0 {
		c.FireCooldownFrames = 150
	}
	if c.CashConfidence == 0 {
		c.CashConfidence = 0.1
	}
	if c.ViolenceConfidence == 0 {
		c.ViolenceConfidence = 0.6
	}
	if c.FireConfidence == 0 {
		c.FireConfidence = 0.5
	}
	if c.HandTouchDistance == 0 {
		c.HandTouchDistance = 100
	}
	if c.PoseConfidenceFloor == 0 {
		c.PoseConfidenceFloor = 0.3
	}
	if c.MotionThreshold == 0 {
		c.MotionThreshold = 100
	}
	if c.BufferSeconds == 0 {
		c.BufferSeconds = 30
	}
	if c.FPS == 0 {
		c.FPS = 15
	}
	if c.DetectEveryN == 0 {
		c.DetectEveryN = 4
	}
	return c
}
