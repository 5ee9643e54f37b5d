package model

// JointMetadata holds the control parameters of one joint.
type JointMetadata struct {
	ID          *int     `json:"id,omitempty" dynamodbav:"id,omitempty"`
	KP          *float64 `json:"kp,omitempty" dynamodbav:"kp,omitempty"`
	KD          *float64 `json:"kd,omitempty" dynamodbav:"kd,omitempty"`
	Offset      *float64 `json:"offset,omitempty" dynamodbav:"offset,omitempty"`
	LowerLimit  *float64 `json:"lower_limit,omitempty" dynamodbav:"lower_limit,omitempty"`
	UpperLimit  *float64 `json:"upper_limit,omitempty" dynamodbav:"upper_limit,omitempty"`
	Flipped     *bool    `json:"flipped,omitempty" dynamodbav:"flipped,omitempty"`
	SoftTorque  *float64 `json:"soft_torque_limit,omitempty" dynamodbav:"soft_torque_limit,omitempty"`
	MaxVelocity *float64 `json:"max_velocity,omitempty" dynamodbav:"max_velocity,omitempty"`
}

type RobotClassMetadata struct {
	Joints           map[string]JointMetadata `json:"joint_name_to_metadata,omitempty" dynamodbav:"joint_name_to_metadata,omitempty"`
	ControlFrequency *float64                 `json:"control_frequency,omitempty" dynamodbav:"control_frequency,omitempty"`
}

// RobotClass describes a kind of robot. Names are unique across all users.
type RobotClass struct {
	ID          string              `json:"id" dynamodbav:"id"`
	UserID      string              `json:"user_id" dynamodbav:"user_id"`
	Name        string              `json:"name" dynamodbav:"name"`
	Description string              `json:"description,omitempty" dynamodbav:"description,omitempty"`
	Metadata    *RobotClassMetadata `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
	CreatedAt   int64               `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt   int64               `json:"updated_at" dynamodbav:"updated_at"`
}

// URDFKey is the object key of the class URDF bundle.
func (c *RobotClass) URDFKey() string {
	return "urdfs/" + c.ID + "/robot.tgz"
}

// KernelKey is the object key of the class kernel image.
func (c *RobotClass) KernelKey() string {
	return "kernel_images/" + c.ID + "/kernel.png"
}

// Robot is an individual robot registered by a user. Names are unique per owner.
type Robot struct {
	ID          string `json:"id" dynamodbav:"id"`
	UserID      string `json:"user_id" dynamodbav:"user_id"`
	ClassID     string `json:"class_id" dynamodbav:"class_id"`
	Name        string `json:"name" dynamodbav:"name"`
	Description string `json:"description,omitempty" dynamodbav:"description,omitempty"`
	CreatedAt   int64  `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt   int64  `json:"updated_at" dynamodbav:"updated_at"`
}
